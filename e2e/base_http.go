package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
)

// BaseHTTPSuite wires one HTTP client against a deployed circle backend.
// The suite is skipped entirely when no CIRCLE_BASE_URL is configured, so
// the unit test run never depends on a running process.
type BaseHTTPSuite struct {
	suite.Suite
	Config Config
	Client *http.Client
}

func (s *BaseHTTPSuite) SetupSuite() {
	cfg, err := LoadConfig()
	s.Require().NoError(err)
	if cfg.BaseURL == "" {
		s.T().Skip("CIRCLE_BASE_URL not set, skipping end-to-end suite")
	}
	s.Config = cfg
	s.Client = &http.Client{Timeout: 10 * time.Second}

	if cfg.Colours {
		header := color.New(color.BgBlack, color.FgGreen)
		fmt.Println(header.Render(" CIRCLE E2E → " + cfg.BaseURL + " "))
	}
}

// PostJSON sends a JSON body and decodes the answer into out when non-nil.
func (s *BaseHTTPSuite) PostJSON(path string, body any, out any) *http.Response {
	raw, err := json.Marshal(body)
	s.Require().NoError(err)
	s.debug("POST "+path, raw)

	response, err := s.Client.Post(s.Config.BaseURL+path, "application/json", bytes.NewReader(raw))
	s.Require().NoError(err)
	defer response.Body.Close()

	if out != nil {
		s.Require().NoError(json.NewDecoder(response.Body).Decode(out))
	}
	return response
}

// GetJSON reads path and decodes the answer into out when non-nil.
func (s *BaseHTTPSuite) GetJSON(path string, out any) *http.Response {
	response, err := s.Client.Get(s.Config.BaseURL + path)
	s.Require().NoError(err)
	defer response.Body.Close()

	if out != nil {
		s.Require().NoError(json.NewDecoder(response.Body).Decode(out))
	}
	return response
}

// Delete issues a DELETE and returns the raw response.
func (s *BaseHTTPSuite) Delete(path string) *http.Response {
	request, err := http.NewRequest(http.MethodDelete, s.Config.BaseURL+path, nil)
	s.Require().NoError(err)
	response, err := s.Client.Do(request)
	s.Require().NoError(err)
	_ = response.Body.Close()
	return response
}

func (s *BaseHTTPSuite) debug(label string, raw []byte) {
	if !s.Config.DebugJSON {
		return
	}
	s.T().Logf("%s %s", label, string(raw))
}
