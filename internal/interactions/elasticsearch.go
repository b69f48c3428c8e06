package interactions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"medlens/internal/common/config"
)

// LabelIndex searches a local mirror of the drug label dataset. Documents
// keep openFDA's field names, so drug_interactions is a list of sections.
type LabelIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewLabelIndex(client *elasticsearch.Client, index string) *LabelIndex {
	return &LabelIndex{client: client, index: index}
}

func (l *LabelIndex) Name() string { return config.SourceElasticsearch }

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source struct {
				DrugInteractions json.RawMessage `json:"drug_interactions"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (l *LabelIndex) Lookup(ctx context.Context, drug string) (string, bool, error) {
	query := map[string]interface{}{
		"size":    1,
		"_source": []string{"drug_interactions"},
		"query": map[string]interface{}{
			"match_phrase": map[string]interface{}{
				"drug_interactions": drug,
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return "", false, fmt.Errorf("encode label query: %w", err)
	}

	res, err := l.client.Search(
		l.client.Search.WithContext(ctx),
		l.client.Search.WithIndex(l.index),
		l.client.Search.WithBody(&buf),
	)
	if err != nil {
		return "", false, fmt.Errorf("label search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", false, fmt.Errorf("label search error: %s", res.Status())
	}

	var decoded searchResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return "", false, fmt.Errorf("decode label search: %w", err)
	}
	if len(decoded.Hits.Hits) == 0 {
		return "", false, nil
	}

	text := firstSection(decoded.Hits.Hits[0].Source.DrugInteractions)
	return text, text != "", nil
}

// firstSection accepts either a list of sections or a single string.
func firstSection(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var sections []string
	if err := json.Unmarshal(raw, &sections); err == nil {
		if len(sections) == 0 {
			return ""
		}
		return sections[0]
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	return ""
}
