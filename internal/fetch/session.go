package fetch

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"net/http/cookiejar"

	"golang.org/x/net/publicsuffix"

	"github.com/ppiankov/mergertracker/internal/model"
)

// session is the per-source browser state: one cookie jar and one sticky
// identity, so consecutive requests to a source look like one visitor
type session struct {
	client     *http.Client
	identities *IdentityPool
}

func newSession(src model.SourceConfig, transport http.RoundTripper, cfg model.HTTPConfig, ids []Identity) (*session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar for %s: %w", src.ID, err)
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(src.ID))

	return &session{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		identities: NewIdentityPool(ids, cfg.RotateEvery, int(h.Sum32()%1024)),
	}, nil
}
