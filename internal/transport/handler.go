package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/you-humble/genstudio/internal/domain"

	"github.com/google/uuid"
)

type Usecase interface {
	Submit(ctx context.Context, p domain.SubmitParams) (string, error)
	CheckStatus(ctx context.Context, taskID string) (domain.StatusResponse, error)
	HandleWebhook(ctx context.Context, ev domain.WebhookEvent) error
	History(ctx context.Context) ([]domain.Task, error)
}

type handler struct {
	maxUploadBytes int64
	usecase        Usecase
}

func NewHandler(maxUploadBytesMb int64, uc Usecase) *handler {
	return &handler{
		maxUploadBytes: maxUploadBytesMb << 20,
		usecase:        uc,
	}
}

type generateRequest struct {
	Prompt      string `json:"prompt"`
	ImageURL    string `json:"image_url"`
	AspectRatio string `json:"aspect_ratio"`
	Resolution  string `json:"resolution"`
	Seed        *int64 `json:"seed"`
	Watermark   *bool  `json:"watermark"`
}

type checkStatusRequest struct {
	TaskID string `json:"taskId"`
}

func (h *handler) generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	requestID := uuid.NewString()
	logger := slog.With(
		slog.String("request_id", requestID),
		slog.String("handler", "generate"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	params, err := h.submitParams(r)
	if err != nil {
		logger.Warn("bad submit request", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskID, err := h.usecase.Submit(r.Context(), params)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPromptRequired),
			errors.Is(err, domain.ErrUnsupportedImage):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			logger.Error("Submit usecase", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "cannot create generation task")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, domain.SubmitResponse{TaskID: taskID})
}

// submitParams decodes either a JSON body or a multipart form carrying an
// image file. The caller closes the multipart file via the request body.
func (h *handler) submitParams(r *http.Request) (domain.SubmitParams, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			return domain.SubmitParams{}, errors.New("unable to parse multipart form")
		}

		p := domain.SubmitParams{
			Prompt:   r.FormValue("prompt"),
			ImageURL: r.FormValue("image_url"),
			Params: domain.GenerationParams{
				AspectRatio: r.FormValue("aspect_ratio"),
				Resolution:  r.FormValue("resolution"),
			},
		}
		if v := r.FormValue("seed"); v != "" {
			seed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return domain.SubmitParams{}, errors.New("seed must be an integer")
			}
			p.Params.Seed = &seed
		}
		if v := r.FormValue("watermark"); v != "" {
			wm, err := strconv.ParseBool(v)
			if err != nil {
				return domain.SubmitParams{}, errors.New("watermark must be a boolean")
			}
			p.Params.Watermark = &wm
		}

		file, header, err := r.FormFile("image")
		if err == nil {
			p.Image = file
			p.ImageFilename = header.Filename
			p.ImageSize = header.Size
		} else if !errors.Is(err, http.ErrMissingFile) {
			return domain.SubmitParams{}, errors.New("invalid image field")
		}

		return p, nil
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.SubmitParams{}, errors.New("invalid JSON body")
	}

	return domain.SubmitParams{
		Prompt:   req.Prompt,
		ImageURL: req.ImageURL,
		Params: domain.GenerationParams{
			AspectRatio: req.AspectRatio,
			Resolution:  req.Resolution,
			Seed:        req.Seed,
			Watermark:   req.Watermark,
		},
	}, nil
}

func (h *handler) checkStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	requestID := uuid.NewString()
	logger := slog.With(
		slog.String("request_id", requestID),
		slog.String("handler", "check-status"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	defer r.Body.Close()

	var req checkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.usecase.CheckStatus(r.Context(), req.TaskID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTaskIDRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrTaskNotFound):
			// the provider knows the task but the store dropped the
			// record; benign, not an error to the poller
			writeJSON(w, http.StatusOK, domain.StatusResponse{
				TaskID: req.TaskID,
				Status: domain.StatusNotFound,
			})
		default:
			logger.Error("CheckStatus usecase", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "failed to fetch status")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) webhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	requestID := uuid.NewString()
	logger := slog.With(
		slog.String("request_id", requestID),
		slog.String("handler", "webhook"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	defer r.Body.Close()

	// Always ACK: the provider treats anything but success as a reason to
	// retransmit, which only amplifies no-op churn.
	var ev domain.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		logger.Error("malformed webhook payload", slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, domain.WebhookAck{Success: true})
		return
	}

	if err := h.usecase.HandleWebhook(r.Context(), ev); err != nil {
		logger.Error("HandleWebhook usecase",
			slog.String("task_id", ev.TaskID),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, domain.WebhookAck{Success: true})
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	requestID := uuid.NewString()
	logger := slog.With(
		slog.String("request_id", requestID),
		slog.String("handler", "history"),
		slog.String("remote_addr", r.RemoteAddr),
	)

	tasks, err := h.usecase.History(r.Context())
	if err != nil {
		logger.Error("History usecase", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "cannot load history")
		return
	}

	writeJSON(w, http.StatusOK, tasks)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	resp := domain.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
