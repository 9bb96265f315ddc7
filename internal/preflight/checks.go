package preflight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const serviceCheckTimeout = 5 * time.Second

// CheckService asks the generation service for its version. A 401 or 403
// means the token was rejected; any other non-200 answer is reported as is.
func CheckService(ctx context.Context, baseURL, token string) Result {
	res := Result{Name: "Generation service"}

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		res.Detail = "missing url"
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/app/version", nil)
	if err != nil {
		res.Detail = fmt.Sprintf("bad url (%v)", err)
		return res
	}
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		res.Detail = describeDialError(err)
		return res
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		res.Detail = "token rejected"
	case resp.StatusCode != http.StatusOK:
		res.Detail = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	default:
		res.Passed = true
		res.Detail = "reachable"
		if version := readVersion(resp.Body); version != "" {
			res.Detail += " (" + version + ")"
		}
	}
	return res
}

func readVersion(body io.Reader) string {
	var payload struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Version)
}

// CheckDirectoryAccess requires path to be a directory the session can list,
// read and write.
func CheckDirectoryAccess(name, path string) Result {
	res := Result{Name: name}
	if strings.TrimSpace(path) == "" {
		res.Detail = "not configured"
		return res
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		res.Detail = path + ": does not exist"
	case err != nil:
		res.Detail = fmt.Sprintf("%s: %v", path, err)
	case !info.IsDir():
		res.Detail = path + ": not a directory"
	default:
		if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
			res.Detail = fmt.Sprintf("%s: %v", path, err)
			break
		}
		res.Passed = true
		res.Detail = path
	}
	return res
}

func describeDialError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out after " + serviceCheckTimeout.String()
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timed out"
	case errors.Is(err, unix.ECONNREFUSED):
		return "connection refused"
	default:
		return err.Error()
	}
}
