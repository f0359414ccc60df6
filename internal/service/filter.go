package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"groupguard/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// maxImageBytes bounds a single fetched image.
const maxImageBytes = 16 << 20

// FilterService adapts inbound messages to the matching pipeline. The
// caller performs enforcement on a matched verdict.
type FilterService struct {
	uc         *biz.FilterUsecase
	httpClient *http.Client
	log        *log.Helper
}

// NewFilterService creates a new FilterService.
func NewFilterService(uc *biz.FilterUsecase, logger log.Logger) *FilterService {
	return &FilterService{
		uc: uc,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.NewHelper(logger),
	}
}

// ImagePayload is one image segment of a message. Data takes precedence
// over URL when both are set.
type ImagePayload struct {
	// Identity is the platform's stable content id or filename.
	Identity string `json:"identity"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

type CheckMessageRequest struct {
	Group  int64          `json:"group"`
	Texts  []string       `json:"texts"`
	Images []ImagePayload `json:"images"`
}

type CheckMessageReply struct {
	Matched bool      `json:"matched"`
	Rule    *RuleInfo `json:"rule,omitempty"`
	// Degraded is set when the rule set could not be fetched; Matched
	// then reflects the configured fail-open/fail-closed policy.
	Degraded bool `json:"degraded,omitempty"`
}

// CheckMessage evaluates one message and returns the verdict.
func (s *FilterService) CheckMessage(ctx context.Context, req *CheckMessageRequest) (*CheckMessageReply, error) {
	msg := &biz.Message{
		Group: req.Group,
		Texts: req.Texts,
	}
	for _, img := range req.Images {
		msg.Images = append(msg.Images, s.toSegment(img))
	}

	verdict, err := s.uc.Check(ctx, msg)
	if err != nil {
		return &CheckMessageReply{Matched: verdict.Matched, Degraded: true}, nil
	}

	reply := &CheckMessageReply{Matched: verdict.Matched}
	if verdict.Rule != nil {
		info := toRuleInfo(verdict.Rule)
		reply.Rule = &info
	}
	return reply, nil
}

func (s *FilterService) toSegment(img ImagePayload) biz.ImageSegment {
	seg := biz.ImageSegment{Identity: img.Identity}
	if len(img.Data) > 0 {
		data := img.Data
		seg.Fetch = func(context.Context) ([]byte, error) {
			return data, nil
		}
		return seg
	}
	url := img.URL
	seg.Fetch = func(ctx context.Context) ([]byte, error) {
		return s.fetchURL(ctx, url)
	}
	return seg
}

func (s *FilterService) fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}
