package transfer

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // archive checksum sidecar format, not security-sensitive
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tommy-ca/binance-datatool-sub005/cmn"
	"github.com/tommy-ca/binance-datatool-sub005/executor"
	"github.com/tommy-ca/binance-datatool-sub005/storage"
)

// TraditionalStrategy implements the Traditional strategy (C6): an
// HTTPS GET of each source object using a bounded-concurrency worker
// pool, writing to the destination backend and optionally verifying
// against the .CHECKSUM sibling.
type TraditionalStrategy struct {
	Backend        storage.Backend
	Concurrency    int
	VerifyChecksum bool

	httpClient  *http.Client
	httpsClient *http.Client
}

var _ Strategy = (*TraditionalStrategy)(nil)

func NewTraditionalStrategy(backend storage.Backend, concurrency int, verifyChecksum bool) *TraditionalStrategy {
	return &TraditionalStrategy{
		Backend:        backend,
		Concurrency:    concurrency,
		VerifyChecksum: verifyChecksum,
		httpClient:     cmn.NewClient(cmn.TransportArgs{}),
		httpsClient:    cmn.NewClient(cmn.TransportArgs{UseHTTPS: true}),
	}
}

func (s *TraditionalStrategy) Name() executor.Strategy { return executor.StrategyTraditional }

func (s *TraditionalStrategy) clientFor(uri string) *http.Client {
	if strings.HasPrefix(uri, "https://") {
		return s.httpsClient
	}
	return s.httpClient
}

func (s *TraditionalStrategy) Execute(ctx context.Context, tasks []executor.TransferTask) []executor.TaskResult {
	results := make([]executor.TaskResult, len(tasks))
	lwg := cmn.NewLimitedWaitGroup(concurrencyFor(s.Concurrency, len(tasks)))

	for i, t := range tasks {
		lwg.Add()
		go func(i int, t executor.TransferTask) {
			defer lwg.Done()
			results[i] = s.transferOne(ctx, t)
		}(i, t)
	}
	lwg.Wait()
	return results
}

func concurrencyFor(requested, n int) int {
	if requested <= 0 {
		requested = 1
	}
	if n < requested {
		return n
	}
	return requested
}

func (s *TraditionalStrategy) transferOne(ctx context.Context, t executor.TransferTask) executor.TaskResult {
	start := time.Now()
	var bytesRead int64

	body, err := s.get(ctx, t.SourceURI)
	if err != nil {
		return result(t, classifyHTTPErr(err), start, 0, 1, "")
	}
	defer body.Close()

	pr := &progressReader{r: body, reporter: func(n int64) { atomic.AddInt64(&bytesRead, n) }}

	var buf bytes.Buffer
	if s.VerifyChecksum && t.ChecksumSourceURI != "" {
		if _, err := io.Copy(&buf, pr); err != nil {
			return result(t, classifyHTTPErr(err), start, atomic.LoadInt64(&bytesRead), 1, "")
		}
		expected, err := s.fetchChecksum(ctx, t.ChecksumSourceURI)
		if err == nil && expected != "" {
			got := md5Hex(buf.Bytes())
			if !strings.EqualFold(got, expected) {
				return result(t, executor.OutcomeChecksumMismatch, start, atomic.LoadInt64(&bytesRead), 1, "")
			}
		}
		destURI := s.Backend.DestinationURI(t.TargetKey)
		if err := s.Backend.Put(ctx, destURI, int64(buf.Len()), bytes.NewReader(buf.Bytes())); err != nil {
			s.Backend.DeleteBestEffort(ctx, destURI)
			return result(t, executor.OutcomeTransientError, start, atomic.LoadInt64(&bytesRead), 1, err.Error())
		}
		return result(t, executor.OutcomeCopied, start, atomic.LoadInt64(&bytesRead), 1, "")
	}

	destURI := s.Backend.DestinationURI(t.TargetKey)
	if err := s.Backend.Put(ctx, destURI, t.ExpectedSizeHint, pr); err != nil {
		// a stream Put can fail after writing part of the object; the
		// checksum-verify path above never reaches Put until the buffered
		// copy has already matched, so a checksum mismatch leaves nothing
		// at the destination to clean up.
		s.Backend.DeleteBestEffort(ctx, destURI)
		return result(t, executor.OutcomeTransientError, start, atomic.LoadInt64(&bytesRead), 1, err.Error())
	}
	return result(t, executor.OutcomeCopied, start, atomic.LoadInt64(&bytesRead), 1, "")
}

func (s *TraditionalStrategy) get(ctx context.Context, uri string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, cmn.Wrap(cmn.KindPermanentError, err)
	}
	resp, err := s.clientFor(uri).Do(req)
	if err != nil {
		return nil, cmn.Wrap(cmn.KindTransientError, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, cmn.ErrSourceMissing
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		return nil, cmn.ErrPermanentError
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, cmn.ErrTransientError
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, cmn.ErrPermanentError
	}
	return resp.Body, nil
}

func (s *TraditionalStrategy) fetchChecksum(ctx context.Context, uri string) (string, error) {
	body, err := s.get(ctx, uri)
	if err != nil {
		return "", err
	}
	defer body.Close()
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	// checksum sidecar files are conventionally "<hex>  <filename>"
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty checksum file")
	}
	return fields[0], nil
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func classifyHTTPErr(err error) executor.Outcome {
	switch {
	case errors.Is(err, cmn.ErrSourceMissing):
		return executor.OutcomeSourceMissing
	case errors.Is(err, cmn.ErrPermanentError):
		return executor.OutcomePermanentError
	default:
		return executor.OutcomeTransientError
	}
}

func result(t executor.TransferTask, outcome executor.Outcome, start time.Time, bytesTransferred int64, attempts int, errMsg string) executor.TaskResult {
	return executor.TaskResult{
		Task: t, Outcome: outcome, BytesTransferred: bytesTransferred,
		Duration: time.Since(start), Attempts: attempts, StrategyUsed: executor.StrategyTraditional, Err: errMsg,
	}
}
