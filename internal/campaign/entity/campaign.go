package entity

// Attachment is the in-memory file sent with every message of a campaign.
type Attachment struct {
	Filename string
	Content  []byte
}

// Sender identifies the account that authenticates against the relay.
type Sender struct {
	Address     string
	DisplayName string
	Secret      string
}

// Campaign is one batch-send request. It is not mutated once a run starts.
type Campaign struct {
	ID         string
	Sender     Sender
	Subject    string
	Body       string
	Recipients []string
	Attachment Attachment
}

// Total returns the number of recipients.
func (c Campaign) Total() int {
	return len(c.Recipients)
}
