package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/fuszti/measure/tracker/measure"
	"github.com/go-chi/chi/v5"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
		headers:  nil,
		json:     nil,
		body:     nil,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Form(values url.Values) *httpTestRequest {
	r.body = strings.NewReader(values.Encode())
	return r.Header("Content-Type", "application/x-www-form-urlencoded")
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

var ErrUnauthorized = errors.New("unauthorized")

type statusError struct {
	method   string
	endpoint string
	code     int
	content  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v request to endpoint %v returned status %d, content '%v'", e.method, e.endpoint, e.code, e.content)
}

func (e *statusError) Is(target error) bool {
	return target == ErrUnauthorized && e.code == http.StatusUnauthorized
}

// statusCode returns the response code carried by an error from Do, or 200
// for a nil error.
func statusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.code
	}
	return 0
}

// detail returns the decoded error body carried by an error from Do.
func detail(err error) map[string]interface{} {
	var serr *statusError
	if !errors.As(err, &serr) {
		return nil
	}
	var body map[string]interface{}
	if json.Unmarshal([]byte(serr.content), &body) != nil {
		return nil
	}
	return body
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	for k, v := range r.headers {
		req.Header.Add(k, v)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	res := w.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return &statusError{method: r.method, endpoint: r.endpoint, code: res.StatusCode, content: w.Body.String()}
	}

	if result != nil {
		err := json.NewDecoder(res.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

type client struct {
	api       chi.Router
	authToken string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) login(username, password string) error {
	var res map[string]string
	err := c.Post("/token").Form(url.Values{"username": {username}, "password": {password}}).Do(&res)
	if err != nil {
		return err
	}

	if res["token_type"] != "bearer" {
		return fmt.Errorf("unexpected token type '%v'", res["token_type"])
	}
	c.authToken = res["access_token"]

	return nil
}

func (c *client) getTemplate(templateId string) (measure.Template, error) {
	var res measure.Template
	err := c.Get(fmt.Sprintf("/templates/%v", templateId)).Do(&res)
	return res, err
}

func (c *client) listTemplates() ([]measure.Template, error) {
	var res []measure.Template
	err := c.Get("/templates").Do(&res)
	return res, err
}

func (c *client) listMeasurements(query url.Values) ([]measure.Measurement, error) {
	var res []measure.Measurement
	err := c.Get("/measurements?" + query.Encode()).Do(&res)
	return res, err
}

func (c *client) statistics(templateId string, query url.Values) (map[string]measure.Stats, error) {
	var res map[string]measure.Stats
	err := c.Get(fmt.Sprintf("/statistics/%v?%v", templateId, query.Encode())).Do(&res)
	return res, err
}
