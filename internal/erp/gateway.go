package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Credentials is the per-user API key pair sent on every request.
type Credentials struct {
	Key    string
	Secret string
}

func (c Credentials) header() string {
	return fmt.Sprintf("token %s:%s", c.Key, c.Secret)
}

// Gateway talks to a Frappe/ERPNext instance over its REST surface.
// The HTTP client and logger are injected; the gateway itself holds no
// per-user state.
type Gateway struct {
	BaseURL        string
	VerifyEndpoint string
	Company        string
	Client         *http.Client
	Log            zerolog.Logger
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 15 * time.Second
)

func (g *Gateway) client() *http.Client {
	if g.Client != nil {
		return g.Client
	}
	return http.DefaultClient
}

func (g *Gateway) readTimeout() time.Duration {
	if g.ReadTimeout > 0 {
		return g.ReadTimeout
	}
	return defaultReadTimeout
}

func (g *Gateway) writeTimeout() time.Duration {
	if g.WriteTimeout > 0 {
		return g.WriteTimeout
	}
	return defaultWriteTimeout
}

func (g *Gateway) resourceURL(doctype, docname string) string {
	base := strings.TrimRight(g.BaseURL, "/")
	u := base + "/api/resource/" + url.PathEscape(doctype)
	if docname != "" {
		u += "/" + url.PathEscape(docname)
	}
	return u
}

func (g *Gateway) do(ctx context.Context, creds Credentials, req *http.Request, timeout time.Duration) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", creds.header())
	req.Header.Set("Accept", "application/json")
	resp, err := g.client().Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// The cancel must outlive body reads; tie it to body close.
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// get performs an authenticated read and decodes the response "data"
// envelope into out.
func (g *Gateway) get(ctx context.Context, creds Credentials, rawURL string, params url.Values, out any) error {
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := g.do(ctx, creds, req, g.readTimeout())
	if err != nil {
		g.Log.Warn().Err(err).Str("url", rawURL).Msg("erp request failed")
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return newGatewayError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return decodeData(body, out)
}

func (g *Gateway) postJSON(ctx context.Context, creds Credentials, rawURL string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, rawURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.do(ctx, creds, req, g.writeTimeout())
	if err != nil {
		g.Log.Warn().Err(err).Str("url", rawURL).Msg("erp request failed")
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return newGatewayError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return decodeData(body, out)
}

func (g *Gateway) deleteResource(ctx context.Context, creds Credentials, rawURL string) error {
	req, err := http.NewRequest(http.MethodDelete, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := g.do(ctx, creds, req, g.writeTimeout())
	if err != nil {
		g.Log.Warn().Err(err).Str("url", rawURL).Msg("erp request failed")
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return newGatewayError(resp.StatusCode, body)
	}
	return nil
}

// decodeData unwraps Frappe's {"data": ...} envelope; bare payloads
// decode directly.
func decodeData(body []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return json.Unmarshal(body, out)
}

// VerifyCredentials checks the key pair against the configured verify
// endpoint. Any 2xx means the pair signs requests correctly.
func (g *Gateway) VerifyCredentials(ctx context.Context, creds Credentials) error {
	endpoint := g.VerifyEndpoint
	if endpoint == "" {
		endpoint = "/api/method/frappe.auth.get_logged_user"
	}
	rawURL := strings.TrimRight(g.BaseURL, "/") + endpoint
	return g.get(ctx, creds, rawURL, nil, nil)
}

type listQuery struct {
	Doctype string
	Fields  []string
	Filter  [3]string // field, operator, value; zero value means no filter
	OrderBy string
	Limit   int
}

func (g *Gateway) list(ctx context.Context, creds Credentials, q listQuery, out any) error {
	fields, err := json.Marshal(q.Fields)
	if err != nil {
		return err
	}
	params := url.Values{}
	params.Set("fields", string(fields))
	params.Set("limit_page_length", fmt.Sprintf("%d", q.Limit))
	if q.OrderBy != "" {
		params.Set("order_by", q.OrderBy)
	}
	if q.Filter[0] != "" {
		filters, err := json.Marshal([][]string{{q.Doctype, q.Filter[0], q.Filter[1], q.Filter[2]}})
		if err != nil {
			return err
		}
		params.Set("filters", string(filters))
	}
	return g.get(ctx, creds, g.resourceURL(q.Doctype, ""), params, out)
}

// runDocMethod drives document lifecycle transitions (submit, cancel)
// through Frappe's generic method runner.
func (g *Gateway) runDocMethod(ctx context.Context, creds Credentials, doctype, docname, method string) error {
	rawURL := strings.TrimRight(g.BaseURL, "/") + "/api/method/run_doc_method"
	payload := map[string]string{"dt": doctype, "dn": docname, "method": method}
	return g.postJSON(ctx, creds, rawURL, payload, nil)
}

// SubmitDoc moves a draft document to docstatus 1.
func (g *Gateway) SubmitDoc(ctx context.Context, creds Credentials, doctype, docname string) error {
	return g.runDocMethod(ctx, creds, doctype, docname, "submit")
}

// CancelDoc moves a submitted document to docstatus 2.
func (g *Gateway) CancelDoc(ctx context.Context, creds Credentials, doctype, docname string) error {
	return g.runDocMethod(ctx, creds, doctype, docname, "cancel")
}

// DeleteDoc removes a draft or cancelled document.
func (g *Gateway) DeleteDoc(ctx context.Context, creds Credentials, doctype, docname string) error {
	return g.deleteResource(ctx, creds, g.resourceURL(doctype, docname))
}
