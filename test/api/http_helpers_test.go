package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, method, relativeURL string, body interface{}) *http.Response {
	t.Helper()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}

	req, err := http.NewRequest(
		method,
		fmt.Sprintf("%s%s", fixture.baseURL, relativeURL),
		bytes.NewReader(payload),
	)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := fixture.client.Do(req)
	require.NoError(t, err)

	return resp
}

func readJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer resp.Body.Close()

	var value T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&value))

	return value
}
