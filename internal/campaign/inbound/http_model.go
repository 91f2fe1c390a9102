package inbound

import "github.com/shandysiswandi/gosend/internal/campaign/entity"

type ProbeCredentialsRequest struct {
	SenderEmail string `json:"sender_email"`
	Password    string `json:"password"`
}

type ProbeCredentialsResponse struct{}

func (ProbeCredentialsResponse) Message() string {
	return "Authentication successful"
}

type LogRecord struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

type ProgressRecord struct {
	Type         string `json:"type"`
	PercentDone  int    `json:"percentDone"`
	Total        int    `json:"total"`
	SentCount    int    `json:"sentCount"`
	FailedCount  int    `json:"failedCount"`
	PendingCount int    `json:"pendingCount"`
}

type CompleteRecord struct {
	Type        string `json:"type"`
	SentCount   int    `json:"sentCount"`
	FailedCount int    `json:"failedCount"`
}

// toEventRecord maps an engine event to its wire record, or nil for unknown
// variants.
func toEventRecord(ev entity.Event) any {
	switch e := ev.(type) {
	case entity.Log:
		return LogRecord{
			Type:     string(e.Type()),
			Message:  e.Message,
			Severity: e.Severity.String(),
		}
	case entity.Progress:
		return ProgressRecord{
			Type:         string(e.Type()),
			PercentDone:  e.PercentDone,
			Total:        e.Total,
			SentCount:    e.SentCount,
			FailedCount:  e.FailedCount,
			PendingCount: e.PendingCount,
		}
	case entity.Complete:
		return CompleteRecord{
			Type:        string(e.Type()),
			SentCount:   e.SentCount,
			FailedCount: e.FailedCount,
		}
	default:
		return nil
	}
}
