package assess

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/groblegark/payd/internal/model"
)

// HTTPAssessor calls an external evaluator over HTTP. The request timeout
// is owned by the circuit breaker wrapping the call, so the client here
// carries none of its own.
type HTTPAssessor struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAssessor creates an assessor POSTing to baseURL + "/assess".
func NewHTTPAssessor(baseURL string) *HTTPAssessor {
	return &HTTPAssessor{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

type assessRequest struct {
	Account *model.Account `json:"account"`
	Context Input          `json:"context"`
}

func (a *HTTPAssessor) Assess(ctx context.Context, acct *model.Account, in Input) (Assessment, error) {
	body, err := json.Marshal(assessRequest{Account: acct, Context: in})
	if err != nil {
		return Assessment{}, fmt.Errorf("marshal assess request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return Assessment{}, fmt.Errorf("build assess request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Assessment{}, fmt.Errorf("call evaluator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Assessment{}, fmt.Errorf("evaluator returned status %d", resp.StatusCode)
	}

	var result Assessment
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Assessment{}, fmt.Errorf("decode assessment: %w", err)
	}
	return result, nil
}
