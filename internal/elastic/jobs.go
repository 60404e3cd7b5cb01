package elastic

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/spigell/talent-screener/internal/oracle"
	"github.com/spigell/talent-screener/internal/requirement"
)

// Jobs reads job documents from the jobs index.
type Jobs struct {
	client *Client
	index  string
}

func NewJobs(client *Client, index string) *Jobs {
	return &Jobs{client: client, index: index}
}

func (j *Jobs) Index() string { return j.index }

type getResponse struct {
	ID     string         `json:"_id"`
	Found  bool           `json:"found"`
	Source map[string]any `json:"_source"`
}

// Get fetches a job by id and decodes its _source.
func (j *Jobs) Get(ctx context.Context, id string) (requirement.Job, error) {
	var doc getResponse
	err := j.client.call(ctx, func(ctx context.Context) (*esapi.Response, error) {
		return j.client.es.Get(j.index, id, j.client.es.Get.WithContext(ctx))
	}, &doc)

	var esErr *Error
	if !errors.Is(err, oracle.ErrUnavailable) && errors.As(err, &esErr) && esErr.Status == http.StatusNotFound {
		return requirement.Job{}, fmt.Errorf("%w: %s/%s", ErrJobNotFound, j.index, id)
	}
	if err != nil {
		return requirement.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	if !doc.Found {
		return requirement.Job{}, fmt.Errorf("%w: %s/%s", ErrJobNotFound, j.index, id)
	}

	return requirement.DecodeJob(id, doc.Source)
}
