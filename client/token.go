package client

import (
	"errors"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"
)

const loginFormPath = "/login"

// getVerificationToken fetches the login form and extracts the hidden
// anti-forgery token the API expects on every request.
func getVerificationToken(r *resty.Client, baseURL string) (string, error) {
	resp, err := r.R().Get(baseURL + loginFormPath)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", &UnexpectedResponseCodeError{Code: resp.StatusCode(), Body: resp.Body()}
	}

	tokenizer := html.NewTokenizer(strings.NewReader(resp.String()))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		token := tokenizer.Token()
		if token.Data != "input" {
			continue
		}
		var name, value string
		for _, attr := range token.Attr {
			switch attr.Key {
			case "name":
				name = attr.Val
			case "value":
				value = attr.Val
			}
		}
		if name == "__RequestVerificationToken" && value != "" {
			return value, nil
		}
	}
	return "", errors.New("no verification token found in login form")
}
