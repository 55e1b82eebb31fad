package adapters

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/massy-ia/citydesk/internal/logging"
)

// Workflow endpoints of the automation server.
const (
	WorkflowElectionBot    = "election-bot"
	WorkflowMarketAnalysis = "market-analysis"
)

// Webhook triggers workflows on an n8n automation server. A webhook with an
// empty base URL is disabled.
type Webhook struct {
	client  *Client
	baseURL string
	wg      sync.WaitGroup
}

func NewWebhook(baseURL string) *Webhook {
	return &Webhook{
		client:  NewClient("n8n", 10*time.Second),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (w *Webhook) Enabled() bool {
	return w != nil && w.baseURL != ""
}

// Trigger posts payload to a workflow and waits for the answer.
func (w *Webhook) Trigger(ctx context.Context, workflow string, payload any) error {
	return w.client.PostJSON(ctx, w.baseURL+"/"+strings.TrimLeft(workflow, "/"), payload)
}

// Notify triggers a workflow in the background. Failures are only logged and
// the request that caused it is never affected.
func (w *Webhook) Notify(ctx context.Context, workflow string, payload any) {
	if !w.Enabled() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := w.Trigger(ctx, workflow, payload); err != nil {
			logging.Warn().Err(err).Str("workflow", workflow).Msg("Workflow trigger failed")
		}
	}()
}

// Wait blocks until background notifications are done.
func (w *Webhook) Wait() {
	if w != nil {
		w.wg.Wait()
	}
}
