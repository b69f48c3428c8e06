package interactions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"medlens/internal/common/config"
	commonhttp "medlens/internal/common/http"
)

// OpenFDA queries the public drug label endpoint.
type OpenFDA struct {
	baseURL string
	apiKey  string
	client  *commonhttp.Client
}

func NewOpenFDA(cfg config.OpenFDAConfig) *OpenFDA {
	return &OpenFDA{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  commonhttp.NewClient(config.GetDuration(cfg.Timeout)),
	}
}

func (o *OpenFDA) Name() string { return config.SourceOpenFDA }

type labelResponse struct {
	Results []struct {
		DrugInteractions []string `json:"drug_interactions"`
	} `json:"results"`
}

func (o *OpenFDA) Lookup(ctx context.Context, drug string) (string, bool, error) {
	query := url.Values{}
	query.Set("search", fmt.Sprintf("drug_interactions:%q", drug))
	query.Set("limit", "1")
	if o.apiKey != "" {
		query.Set("api_key", o.apiKey)
	}

	resp, err := o.client.Get(ctx, o.baseURL+"/drug/label.json?"+query.Encode())
	if err != nil {
		return "", false, fmt.Errorf("openfda request: %w", err)
	}
	// openFDA answers 404 when the search matches nothing.
	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if !resp.OK() {
		return "", false, fmt.Errorf("openfda returned status %d", resp.StatusCode)
	}

	var decoded labelResponse
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return "", false, fmt.Errorf("decode openfda response: %w", err)
	}
	if len(decoded.Results) == 0 || len(decoded.Results[0].DrugInteractions) == 0 {
		return "", false, nil
	}

	text := decoded.Results[0].DrugInteractions[0]
	return text, text != "", nil
}
