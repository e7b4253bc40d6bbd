package testutil

import (
	"net"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"gotest.tools/v3/assert"
)

const (
	sleepInterval = 500 * time.Millisecond

	minPort = 2048
	maxPort = 16384
)

var (
	portMutex sync.Mutex
	curPort   = minPort
)

// NewLogger returns a logger writing through the testing.T so log lines
// interleave with test output. Frame skips the zerolog wrappers so caller
// info points at the logging site.
func NewLogger(t *testing.T) zerolog.Logger {
	if detailed, _ := strconv.ParseBool(os.Getenv("DETAILED_ERRORS")); detailed {
		zerolog.ErrorMarshalFunc = errors.ErrorMarshalFunc
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := zerolog.ConsoleWriter{
		Out:                 zerolog.TestWriter{T: t, Frame: 6},
		TimeFormat:          time.RFC3339Nano,
		FormatErrFieldValue: errors.FormatErrFieldValue,
	}

	return zerolog.New(out).With().Timestamp().Stack().Caller().Logger().Level(zerolog.InfoLevel)
}

type helperT interface {
	Helper()
}

// NilError fails the test immediately when err isn't nil, logging the full
// error chain when DETAILED_ERRORS is set.
func NilError(t assert.TestingT, err error, msgAndArgs ...any) {
	if ht, ok := t.(helperT); ok {
		ht.Helper()
	}

	if assert.Check(t, err, msgAndArgs...) {
		return
	}

	if detailed, _ := strconv.ParseBool(os.Getenv("DETAILED_ERRORS")); detailed {
		for _, l := range errors.PrintErrorDetails(err) {
			t.Log(l)
		}
	}

	t.FailNow()
}

type CheckFunc func() (bool, error)

// Wait polls f until it reports true or timeout expires.
func Wait(timeout time.Duration, f CheckFunc) error {
	timeoutCh := time.After(timeout)
	for {
		ok, err := f()
		if err != nil {
			return errors.WithStack(err)
		}
		if ok {
			return nil
		}
		select {
		case <-timeoutCh:
			return errors.Errorf("timeout reached after %s", timeout)
		case <-time.After(sleepInterval):
		}
	}
}

// GetFreePort reserves a tcp port for a test service to listen on. Ports are
// handed out sequentially from a private range under a lock so parallel
// tests don't race for the same one.
func GetFreePort() (string, string, error) {
	portMutex.Lock()
	defer portMutex.Unlock()

	localhostIP, err := net.ResolveIPAddr("ip", "localhost")
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to resolve localhost addr")
	}
	host := localhostIP.IP.String()

	for port := curPort + 1; port <= maxPort; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		ln.Close()

		curPort = port
		return host, strconv.Itoa(port), nil
	}

	return "", "", errors.Errorf("no free port left in range %d-%d", minPort, maxPort)
}
