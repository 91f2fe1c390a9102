package inbound

import (
	"net/http"

	"github.com/shandysiswandi/gosend/internal/pkg/router"
)

const (
	defaultMaxAttachmentBytes = 10 << 20
	// formOverheadBytes covers the text fields and multipart framing.
	formOverheadBytes = 1 << 20
)

func RegisterHTTPEndpoint(r *router.Router, uc uc, maxAttachmentBytes int64) {
	if maxAttachmentBytes <= 0 {
		maxAttachmentBytes = defaultMaxAttachmentBytes
	}

	end := &HTTPEndpoint{uc: uc, maxAttachmentBytes: maxAttachmentBytes}

	r.POSTRaw("/api/v1/campaign/send", http.HandlerFunc(end.StartCampaign))
	r.POST("/api/v1/campaign/probe", end.ProbeCredentials)
}
