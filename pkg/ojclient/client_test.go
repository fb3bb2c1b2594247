package ojclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangicheng/orange-juice/pkg/captcha"
)

func TestResultFromAPIValueAliasesAndUnknown(t *testing.T) {
	r, err := ResultFromAPIValue(-3)
	require.NoError(t, err)
	assert.Equal(t, ResultMLE, r)

	r, err = ResultFromAPIValue(2)
	require.NoError(t, err)
	assert.Equal(t, ResultTLE, r)

	r, err = ResultFromAPIValue(0)
	require.NoError(t, err)
	assert.Equal(t, ResultAC, r)

	_, err = ResultFromAPIValue(999)
	assert.Error(t, err)
}

func TestIsJudged(t *testing.T) {
	assert.False(t, IsJudged(ResultPending))
	assert.False(t, IsJudged(ResultJudging))
	assert.True(t, IsJudged(ResultAC))
	assert.True(t, IsJudged(ResultMLE))
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoginSuccess(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/profile":
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok1"})
			w.WriteHeader(http.StatusOK)
		case "/api/login":
			http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "sess1"})
			_ = json.NewEncoder(w).Encode(map[string]any{})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	c := New(srv.URL, captcha.NewStub())
	err := c.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)
}

func TestLoginMissingSessionCookieIsProtocolError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/profile":
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok1"})
		case "/api/login":
			_ = json.NewEncoder(w).Encode(map[string]any{})
		}
	})

	c := New(srv.URL, captcha.NewStub())
	err := c.Login(context.Background(), "alice", "pw")
	require.Error(t, err)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestLoginCredentialError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/profile":
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok1"})
		case "/api/login":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": "bad",
				"data":  "User does not exist or password is not correct",
			})
		}
	})

	c := New(srv.URL, captcha.NewStub())
	err := c.Login(context.Background(), "alice", "wrong")
	var credErr *CredentialError
	assert.ErrorAs(t, err, &credErr)
}

func TestRegisterAccountExists(t *testing.T) {
	imgB64 := base64.StdEncoding.EncodeToString([]byte("fake-image-bytes"))
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/profile":
			http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "tok1"})
		case "/api/captcha":
			_ = json.NewEncoder(w).Encode(map[string]any{"data": "data:image/png;base64," + imgB64})
		case "/api/register":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": "bad",
				"data":  "Username already exists",
			})
		}
	})

	c := New(srv.URL, captcha.NewStub())
	err := c.Register(context.Background(), "bob", "pw", "bob@example.com")
	var exists *AccountExistsError
	assert.ErrorAs(t, err, &exists)
}

func TestSubmitAndAwaitMemory(t *testing.T) {
	polls := 0
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/submission" && r.Method == http.MethodPost:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"submission_id": "sub-1"},
			})
		case r.URL.Path == "/api/submission" && r.Method == http.MethodGet:
			polls++
			if polls < 2 {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"data": map[string]any{"result": int(ResultJudging)},
				})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{
					"result":         int(ResultAC),
					"statistic_info": map[string]any{"memory_cost": 12345},
				},
			})
		}
	})

	c := New(srv.URL, captcha.NewStub(), WithPollPeriod(0))
	mem, err := c.SubmitAndAwaitMemory(context.Background(), "int main(){}", "C++", 1)
	require.NoError(t, err)
	assert.Equal(t, 12345, mem)
	assert.GreaterOrEqual(t, polls, 2)
}

func TestGetSubmissionMissingMemoryIsProtocolError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"result": int(ResultAC)},
		})
	})

	c := New(srv.URL, captcha.NewStub())
	_, _, err := c.GetSubmission(context.Background(), SubmissionID("x"))
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}
