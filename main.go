package main

import (
	"context"
	"time"

	"github.com/shandysiswandi/gosend/internal/app"
)

// @title           GoSend API
// @version         1.0
// @description     GoSend sends one plain text message with a PDF attachment to a list of recipients through an authenticated SMTP relay and streams the progress.
// @contact.name    Contact Support
// @license.name    MIT
// @license.url     https://mit-license.org/
// @server          http://localhost:8080
func main() {
	application := app.New()
	<-application.Start()

	// running campaigns see their context cancelled and stop at the next recipient
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	application.Stop(ctx)
}
