package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lexrag/internal/config"
	"lexrag/internal/embed"
	"lexrag/internal/models"
	"lexrag/internal/pdfx"
	"lexrag/internal/providers"
	"lexrag/internal/storage"
	"lexrag/internal/util"
	"lexrag/internal/vector"
	"lexrag/internal/workflows"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"
)

type Server struct {
	cfg         config.Config
	db          *storage.DB
	docRepo     *storage.DocumentRepo
	chunkRepo   *storage.ChunkRepo
	historyRepo *storage.HistoryRepo
	searcher    *vector.Searcher
	providers   *providers.Manager
	temporal    tclient.Client
}

type evidenceItem struct {
	ChunkID    string  `json:"chunk_id"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

func NewServer(cfg config.Config) *Server {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		panic(err)
	}
	pm, err := providers.NewManager(cfg)
	if err != nil {
		panic(err)
	}
	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		panic(err)
	}
	log.Printf("providers ready: %d llm, %d embed", pm.LLMCount(), pm.EmbedCount())
	return &Server{
		cfg:         cfg,
		db:          db,
		docRepo:     storage.NewDocumentRepo(db),
		chunkRepo:   storage.NewChunkRepo(db, cfg.WriteBatchSize, time.Duration(cfg.WriteTimeoutSecs)*time.Second),
		historyRepo: storage.NewHistoryRepo(db),
		searcher:    vector.NewSearcher(db.Pool),
		providers:   pm,
		temporal:    tc,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/documents", s.handleDocuments)
	mux.HandleFunc("/documents/", s.handleDocumentScoped)
	mux.HandleFunc("/qa", s.handleQA)
	mux.HandleFunc("/summarize", s.handleSummarize)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	s.handleUpload(w, r)
}

func (s *Server) handleDocumentScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), "/")
	if len(parts) < 1 || parts[0] == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	docHash := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleStatus(w, r, docHash)
		case http.MethodDelete:
			s.handleDelete(w, r, docHash)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "retrieve":
			if r.Method != http.MethodPost {
				writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
				return
			}
			s.handleRetrieve(w, r, docHash)
			return
		case "reingest":
			if r.Method != http.MethodPost {
				writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
				return
			}
			s.handleReingest(w, r, docHash)
			return
		case "history":
			if r.Method != http.MethodGet {
				writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
				return
			}
			s.handleHistory(w, r, docHash)
			return
		}
	}

	writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}

	var fh *multipart.FileHeader
	if files := r.MultipartForm.File["file"]; len(files) > 0 {
		fh = files[0]
	} else if single, ok := firstSingleFile(r.MultipartForm.File); ok {
		fh = single
	}
	if fh == nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("no file provided"))
		return
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") {
		writeErr(w, http.StatusBadRequest, util.ErrUnsupportedFile)
		return
	}
	if fh.Size > maxBytes {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("file exceeds %d MB limit", s.cfg.MaxUploadMB))
		return
	}

	docHash, savedPath, size, err := saveUploadedFile(s.cfg.UploadDir, fh)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	// Page count is read up front so duplicate responses can report it
	// without waiting for the pipeline. An unreadable file still registers;
	// the pipeline surfaces the parse failure as a failed document.
	pageCount, err := pdfx.PageCount(savedPath)
	if err != nil {
		log.Printf("page count for %s unavailable at upload: %v", docHash, err)
		pageCount = 0
	}

	created, err := s.docRepo.Register(r.Context(), models.Document{
		DocHash:   docHash,
		Filename:  filepath.Base(fh.Filename),
		OwnerID:   callerID(r),
		SizeBytes: size,
		PageCount: pageCount,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	doc := models.Document{
		DocHash:   docHash,
		Filename:  filepath.Base(fh.Filename),
		Status:    models.StatusRegistered,
		PageCount: pageCount,
	}
	if !created {
		existing, err := s.docRepo.Get(r.Context(), docHash)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		doc = existing
	}

	status, body, startPipeline := decideUpload(doc, created)
	if startPipeline {
		if err := s.startIngest(r.Context(), docHash, savedPath, fh.Filename); err != nil {
			if mErr := s.docRepo.MarkFailed(r.Context(), docHash, "could not start ingestion: "+err.Error()); mErr != nil {
				log.Printf("mark failed after workflow start error for %s: %v", docHash, mErr)
			}
			writeErr(w, http.StatusBadGateway, fmt.Errorf("start ingestion: %w", err))
			return
		}
	}
	writeJSON(w, status, body)
}

// decideUpload resolves a registration outcome. Only the caller that won the
// registration race starts a pipeline; a duplicate upload reports the
// existing document and triggers nothing.
func decideUpload(doc models.Document, created bool) (int, map[string]any, bool) {
	body := map[string]any{
		"doc_hash":   doc.DocHash,
		"filename":   doc.Filename,
		"status":     doc.Status,
		"page_count": doc.PageCount,
		"duplicate":  !created,
	}
	if !created {
		return http.StatusOK, body, false
	}
	return http.StatusAccepted, body, true
}

func (s *Server) startIngest(ctx context.Context, docHash, path, filename string) error {
	_, err := s.temporal.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       "ingest-" + docHash,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.DocumentIngestWorkflow, workflows.DocumentIngestInput{
		DocHash:      docHash,
		Path:         path,
		Filename:     filename,
		ChunkSize:    s.cfg.ChunkSize,
		ChunkOverlap: s.cfg.ChunkOverlap,
		MaxPages:     s.cfg.MaxPages,
	})
	return err
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, docHash string) {
	doc, err := s.getOwnedDocument(r, docHash)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}

	status := doc.Status
	failReason := doc.FailReason
	if status == models.StatusProcessing {
		// A processing row with no live workflow behind it means the worker
		// died mid-pipeline. Report it as failed so the caller can retrigger.
		desc, dErr := s.temporal.DescribeWorkflowExecution(r.Context(), "ingest-"+docHash, "")
		if dErr == nil {
			wfStatus := desc.GetWorkflowExecutionInfo().GetStatus()
			if wfStatus != enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING {
				status = models.StatusFailed
				failReason = "ingestion stopped unexpectedly"
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"doc_hash":       doc.DocHash,
		"filename":       doc.Filename,
		"status":         status,
		"fail_reason":    failReason,
		"page_count":     doc.PageCount,
		"chunk_count":    doc.ChunkCount,
		"degraded_count": doc.DegradedCount,
		"size_bytes":     doc.SizeBytes,
		"created_at":     doc.CreatedAt,
		"updated_at":     doc.UpdatedAt,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, docHash string) {
	doc, err := s.getOwnedDocument(r, docHash)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if err := s.chunkRepo.DeleteByDocument(r.Context(), docHash); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.docRepo.Delete(r.Context(), docHash); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := os.Remove(filepath.Join(s.cfg.UploadDir, docHash+".pdf")); err != nil && !os.IsNotExist(err) {
		log.Printf("remove stored pdf for %s: %v", docHash, err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"doc_hash": doc.DocHash, "deleted": true})
}

func (s *Server) handleReingest(w http.ResponseWriter, r *http.Request, docHash string) {
	doc, err := s.getOwnedDocument(r, docHash)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	ok, err := s.docRepo.Retrigger(r.Context(), docHash)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeErr(w, http.StatusConflict, fmt.Errorf("document is %s, only failed documents can be re-ingested", doc.Status))
		return
	}
	path := filepath.Join(s.cfg.UploadDir, docHash+".pdf")
	if err := s.startIngest(r.Context(), docHash, path, doc.Filename); err != nil {
		if mErr := s.docRepo.MarkFailed(r.Context(), docHash, "could not start ingestion: "+err.Error()); mErr != nil {
			log.Printf("mark failed after workflow start error for %s: %v", docHash, mErr)
		}
		writeErr(w, http.StatusBadGateway, fmt.Errorf("start ingestion: %w", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"doc_hash": docHash, "status": models.StatusRegistered})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request, docHash string) {
	var req struct {
		Question string `json:"question"`
		TopK     int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	doc, err := s.getOwnedDocument(r, docHash)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}

	results, info, err := s.retrieve(r.Context(), doc.DocHash, req.Question, req.TopK)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_hash":        doc.DocHash,
		"results":         toEvidence(results),
		"retrieved_count": len(results),
		"embed_provider":  info.Name,
		"embed_model":     info.Model,
	})
}

func (s *Server) handleQA(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		DocHash  string `json:"doc_hash"`
		Question string `json:"question"`
		TopK     int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.DocHash = strings.TrimSpace(req.DocHash)
	req.Question = strings.TrimSpace(req.Question)
	if req.DocHash == "" || req.Question == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("doc_hash and question are required"))
		return
	}

	doc, err := s.getOwnedDocument(r, req.DocHash)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}

	results, _, err := s.retrieve(r.Context(), doc.DocHash, req.Question, req.TopK)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	if len(results) == 0 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("no evidence found for this document"))
		return
	}

	snippets := make([]string, 0, len(results))
	for _, c := range results {
		snippets = append(snippets, c.Text)
	}

	answer, llmInfo, genErr := s.generate(r.Context(), "qa_answer", BuildRAGPrompt(req.Question, snippets))
	confidence := answerConfidence(answer)
	if genErr != nil {
		log.Printf("qa generation failed for %s: %v", doc.DocHash, genErr)
		answer = degradedAnswer
		confidence = 0.0
	}

	rec := models.QARecord{
		ID:         uuid.NewString(),
		DocHash:    doc.DocHash,
		OwnerID:    callerID(r),
		Question:   req.Question,
		Answer:     answer,
		Confidence: confidence,
	}
	if err := s.historyRepo.Insert(r.Context(), rec); err != nil {
		log.Printf("record qa history for %s: %v", doc.DocHash, err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"doc_hash":     doc.DocHash,
		"answer":       answer,
		"confidence":   confidence,
		"evidence":     toEvidence(results),
		"llm_provider": llmInfo.Name,
		"llm_model":    llmInfo.Model,
	})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var req struct {
		DocHash string `json:"doc_hash"`
		TopK    int    `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	req.DocHash = strings.TrimSpace(req.DocHash)
	if req.DocHash == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("doc_hash is required"))
		return
	}
	if req.TopK <= 0 {
		req.TopK = 10
	}

	doc, err := s.getOwnedDocument(r, req.DocHash)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}

	// An empty question falls back to the anchor query inside retrieve, so
	// summarization reuses the same scoped search path as QA.
	results, _, err := s.retrieve(r.Context(), doc.DocHash, "", req.TopK)
	if err != nil {
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	if len(results) == 0 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("no evidence found for this document"))
		return
	}

	snippets := make([]string, 0, len(results))
	for _, c := range results {
		snippets = append(snippets, c.Text)
	}

	summary, llmInfo, genErr := s.generate(r.Context(), "summarize", BuildSummaryPrompt(snippets))
	confidence := answerConfidence(summary)
	if genErr != nil {
		log.Printf("summary generation failed for %s: %v", doc.DocHash, genErr)
		summary = degradedAnswer
		confidence = 0.0
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"doc_hash":     doc.DocHash,
		"summary":      summary,
		"confidence":   confidence,
		"chunks_used":  len(results),
		"llm_provider": llmInfo.Name,
		"llm_model":    llmInfo.Model,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, docHash string) {
	doc, err := s.getOwnedDocument(r, docHash)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	records, err := s.historyRepo.ListByDocument(r.Context(), doc.DocHash, 50)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doc_hash": doc.DocHash, "history": records})
}

// retrieve embeds the query with the first working provider and runs the
// scoped similarity search. Every search is bound to one document hash.
func (s *Server) retrieve(ctx context.Context, docHash, question string, topK int) ([]models.EvidenceChunk, providers.ProviderInfo, error) {
	if topK <= 0 {
		topK = 5
	}
	queryText := vector.QueryText(question)

	var (
		queryVec []float32
		info     providers.ProviderInfo
		err      error
	)
	for _, idx := range s.providers.PreferredEmbedOrder() {
		p, ref := s.providers.EmbedProviderByIndex(idx)
		b := embed.NewBatcher(p, s.cfg.EmbedDim, s.cfg.EmbedBatchSize, time.Duration(s.cfg.EmbedTimeoutSecs)*time.Second)
		queryVec, info, err = b.EmbedOne(ctx, "query_embed", queryText)
		if err == nil {
			break
		}
		log.Printf("query embed via %s failed (%s): %v", ref.Name, providers.ClassifyError(err), err)
	}
	if err != nil || queryVec == nil {
		return nil, info, fmt.Errorf("embedding providers unavailable (%s): %w", providers.ClassifyError(err), err)
	}

	results, err := s.searcher.SearchChunks(ctx, docHash, queryVec, topK)
	if err != nil {
		return nil, info, err
	}
	return results, info, nil
}

func (s *Server) generate(ctx context.Context, operation, prompt string) (string, providers.ProviderInfo, error) {
	var (
		resp providers.GenerateResponse
		info providers.ProviderInfo
		err  error
	)
	for _, idx := range s.providers.PreferredLLMOrder() {
		p, ref := s.providers.LLMProviderByIndex(idx)
		resp, info, err = p.Generate(ctx, providers.GenerateRequest{
			Operation: operation,
			Prompt:    prompt,
		})
		if err == nil && strings.TrimSpace(resp.Text) != "" {
			if info.Name == "" {
				info.Name = ref.Name
			}
			return strings.TrimSpace(resp.Text), info, nil
		}
		if err != nil {
			log.Printf("generate %s via %s failed (%s): %v", operation, ref.Name, providers.ClassifyError(err), err)
		}
	}
	if err == nil {
		err = fmt.Errorf("all generation providers returned empty output")
	}
	return "", info, fmt.Errorf("generation failed (%s): %w", providers.ClassifyError(err), err)
}

// getOwnedDocument hides other owners' documents behind not-found rather
// than forbidden, so hashes cannot be probed for existence.
func (s *Server) getOwnedDocument(r *http.Request, docHash string) (models.Document, error) {
	doc, err := s.docRepo.Get(r.Context(), docHash)
	if err != nil {
		return models.Document{}, err
	}
	caller := callerID(r)
	if doc.OwnerID != "" && doc.OwnerID != caller {
		return models.Document{}, storage.ErrDocumentNotFound
	}
	return doc, nil
}

func callerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func toEvidence(results []models.EvidenceChunk) []evidenceItem {
	out := make([]evidenceItem, 0, len(results))
	for _, c := range results {
		snippet := c.Text
		if len(snippet) > 500 {
			snippet = snippet[:500] + "..."
		}
		out = append(out, evidenceItem{
			ChunkID:    c.ChunkID,
			Page:       c.Page,
			ChunkIndex: c.ChunkIndex,
			Snippet:    snippet,
			Score:      c.Score,
		})
	}
	return out
}

// saveUploadedFile streams the upload to a temp file while hashing it, then
// renames it to its content-addressed name. Two uploads of the same bytes
// converge on the same path.
func saveUploadedFile(dstDir string, fh *multipart.FileHeader) (docHash, path string, size int64, err error) {
	if err := util.EnsureDir(dstDir); err != nil {
		return "", "", 0, err
	}
	src, err := fh.Open()
	if err != nil {
		return "", "", 0, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dstDir, "upload-*.pdf")
	if err != nil {
		return "", "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
	}()

	docHash, err = util.SHA256HexFromReader(io.TeeReader(src, tmp))
	if err != nil {
		return "", "", 0, fmt.Errorf("write upload: %w", err)
	}

	finalPath := util.SafeJoin(dstDir, docHash+".pdf")
	if err := tmp.Close(); err != nil {
		return "", "", 0, err
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return "", "", 0, fmt.Errorf("atomic move upload: %w", err)
	}
	return docHash, finalPath, fh.Size, nil
}

func firstSingleFile(m map[string][]*multipart.FileHeader) (*multipart.FileHeader, bool) {
	for _, v := range m {
		if len(v) > 0 {
			return v[0], true
		}
	}
	return nil, false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	msg := "request failed"
	if err != nil {
		msg = err.Error()
		if errors.Is(err, storage.ErrDocumentNotFound) {
			msg = "document not found"
		}
	}
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"status":  code,
			"message": msg,
		},
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
