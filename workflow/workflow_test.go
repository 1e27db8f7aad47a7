package workflow_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/tommy-ca/binance-datatool-sub005/collect"
	"github.com/tommy-ca/binance-datatool-sub005/manifeststore"
	"github.com/tommy-ca/binance-datatool-sub005/matrix"
	"github.com/tommy-ca/binance-datatool-sub005/workflow"
)

func writeMatrixFixture(dir, serverURL string) string {
	content := fmt.Sprintf(`{
		"availability_matrix": [
			{
				"market": "spot",
				"data_type": "klines",
				"intervals": ["1h"],
				"partitions": ["daily"],
				"available_from": "2020-01-01",
				"url_pattern": "%s/data/{partition}/{market_path}/{data_type}/{symbol}/{interval}/{filename}",
				"filename_pattern": "{symbol}-{interval}-{date}.zip"
			}
		],
		"symbols": {"spot": ["BTCUSDT"]},
		"file_format": {"compression": "zip", "content_format": "csv", "checksum_files": false}
	}`, serverURL)
	path := filepath.Join(dir, "matrix.json")
	Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())
	return path
}

func strPtr(s string) *string { return &s }

var _ = Describe("Orchestrator", func() {
	var (
		workDir   string
		destDir   string
		srv       *httptest.Server
		matrixPath string
	)

	BeforeEach(func() {
		var err error
		workDir, err = os.MkdirTemp("", "bulkcollect-wf-")
		Expect(err).NotTo(HaveOccurred())
		destDir = filepath.Join(workDir, "dest")
		Expect(os.MkdirAll(destDir, 0o755)).To(Succeed())

		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("archive-bytes"))
		}))
		matrixPath = writeMatrixFixture(workDir, srv.URL)
	})

	AfterEach(func() {
		srv.Close()
		os.RemoveAll(workDir)
	})

	baseRequest := func() collect.CollectionRequest {
		req := collect.CollectionRequest{
			Markets:   []matrix.Market{matrix.MarketSpot},
			DataTypes: []string{"klines"},
			Intervals: map[string][]*string{"klines": {strPtr("1h")}},
			DateRange: &collect.DateRange{Start: "2025-07-15", End: "2025-07-15"},
			Mode:      collect.ModeTraditional,
		}
		req.SetFlatSymbols("BTCUSDT")
		return req
	}

	It("runs the traditional strategy end to end and persists a succeeded manifest", func() {
		req := baseRequest()
		req.Destination = collect.Destination{LocalDirectory: destDir}

		o := &workflow.Orchestrator{MatrixPath: matrixPath, ToolBinary: "bulkcollect-nonexistent-tool"}
		mf, err := o.Run(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())
		Expect(mf.Status).To(Equal(manifeststore.StatusSucceeded))
		Expect(mf.TasksTotal).To(Equal(1))
		Expect(mf.TasksSucceeded).To(Equal(1))

		manifestPath := filepath.Join(destDir, "_manifest", mf.RunID+".json")
		_, statErr := os.Stat(manifestPath)
		Expect(statErr).NotTo(HaveOccurred())
	})

	It("fails fast without attempting execution when the config is invalid", func() {
		req := baseRequest()
		req.Destination = collect.Destination{} // neither local nor object store set

		o := &workflow.Orchestrator{MatrixPath: matrixPath, ToolBinary: "bulkcollect-nonexistent-tool"}
		mf, err := o.Run(context.Background(), req)
		Expect(err).To(HaveOccurred())
		Expect(mf.Status).To(Equal(manifeststore.StatusFailed))
		Expect(mf.TasksTotal).To(Equal(0))
	})

	It("fails fast when the matrix file cannot be loaded", func() {
		req := baseRequest()
		req.Destination = collect.Destination{LocalDirectory: destDir}

		o := &workflow.Orchestrator{MatrixPath: filepath.Join(workDir, "does-not-exist.json"), ToolBinary: "x"}
		mf, err := o.Run(context.Background(), req)
		Expect(err).To(HaveOccurred())
		Expect(mf.Status).To(Equal(manifeststore.StatusFailed))
	})

	It("fails the execute stage immediately on an incompatible mode/destination combination", func() {
		req := baseRequest()
		req.Mode = collect.ModeDirect // direct requires an S3 destination
		req.Destination = collect.Destination{LocalDirectory: destDir}

		o := &workflow.Orchestrator{MatrixPath: matrixPath, ToolBinary: "bulkcollect-nonexistent-tool"}
		mf, err := o.Run(context.Background(), req)
		Expect(err).To(HaveOccurred())
		Expect(mf.Status).To(Equal(manifeststore.StatusFailed))
	})

	It("reports a cancelled run when the context is already cancelled", func() {
		req := baseRequest()
		req.Destination = collect.Destination{LocalDirectory: destDir}

		o := &workflow.Orchestrator{MatrixPath: matrixPath, ToolBinary: "bulkcollect-nonexistent-tool"}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		mf, err := o.Run(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		Expect(mf.Status).To(Equal(manifeststore.StatusCancelled))
	})
})
