package pulse

import (
	"bytes"
	"mime"
	"net/http"
	"slices"
	"strings"

	"github.com/HerbHall/loginwatch/pkg/models"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// TokenExtractor finds an anti-forgery token in the response that served
// the login page. Implementations return nil when no token is present and
// never fail the probe.
type TokenExtractor interface {
	Extract(resp *http.Response, body []byte) *models.CSRFToken
}

// Compile-time interface guards.
var (
	_ TokenExtractor = CookieExtractor{}
	_ TokenExtractor = HTMLExtractor{}
	_ TokenExtractor = (*ChainExtractor)(nil)
)

// CookieExtractor looks for a token cookie set by the login page.
type CookieExtractor struct {
	Names []string
}

// Extract returns the first configured cookie name present with a non-empty value.
func (e CookieExtractor) Extract(resp *http.Response, _ []byte) *models.CSRFToken {
	if resp == nil {
		return nil
	}
	cookies := resp.Cookies()
	for _, name := range e.Names {
		for _, c := range cookies {
			if c.Name == name && c.Value != "" {
				return &models.CSRFToken{Value: c.Value, Source: models.TokenSourceCookie, Name: c.Name}
			}
		}
	}
	return nil
}

// HTMLExtractor parses an HTML login form for a hidden token input.
type HTMLExtractor struct {
	FieldNames []string
}

// Extract returns the value of the first <input> in document order whose
// name is one of FieldNames. Non-HTML responses yield nil.
func (e HTMLExtractor) Extract(resp *http.Response, body []byte) *models.CSRFToken {
	if resp == nil || len(body) == 0 || !isHTML(resp.Header.Get("Content-Type")) {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var token *models.CSRFToken
	doc.Find("input[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if !slices.Contains(e.FieldNames, name) {
			return true
		}
		value, _ := s.Attr("value")
		if value == "" {
			return true
		}
		token = &models.CSRFToken{Value: value, Source: models.TokenSourceHTML, Name: name}
		return false
	})
	return token
}

// ChainExtractor tries each strategy in order and returns the first hit.
type ChainExtractor struct {
	strategies []TokenExtractor
	logger     *zap.Logger
}

// NewChainExtractor composes strategies in precedence order.
func NewChainExtractor(logger *zap.Logger, strategies ...TokenExtractor) *ChainExtractor {
	return &ChainExtractor{strategies: strategies, logger: logger}
}

// NewExtractor builds the default chain from config: cookies first, then
// the HTML form when HTML parsing is enabled.
func NewExtractor(cfg CSRFConfig, logger *zap.Logger) *ChainExtractor {
	strategies := []TokenExtractor{CookieExtractor{Names: cfg.CookieNames}}
	if cfg.HTMLEnabled {
		strategies = append(strategies, HTMLExtractor{FieldNames: cfg.FieldNames})
	}
	return NewChainExtractor(logger, strategies...)
}

func (c *ChainExtractor) Extract(resp *http.Response, body []byte) *models.CSRFToken {
	for _, s := range c.strategies {
		if token := s.Extract(resp, body); token != nil {
			c.logger.Debug("csrf token found",
				zap.String("source", string(token.Source)),
				zap.String("name", token.Name),
			)
			return token
		}
	}
	c.logger.Debug("no csrf token found")
	return nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "json")
}
