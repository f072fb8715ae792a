package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/HKUDS/graffitibot-go/pkg/metrics"
	"github.com/HKUDS/graffitibot-go/pkg/transport"
	"github.com/HKUDS/graffitibot-go/pkg/vkapi"
	"go.uber.org/zap"
)

// formField is the multipart field the upload server expects photos under.
const formField = "photo"

var (
	// ErrFileNotFound is returned when the source file does not exist.
	ErrFileNotFound = errors.New("upload: file not found")
	// ErrFileAccess is returned when the source exists but cannot be uploaded.
	ErrFileAccess = errors.New("upload: file not accessible")
)

// API is the subset of the remote client the flow uses.
type API interface {
	GetMessagesUploadServer(ctx context.Context, peerID int) (vkapi.UploadTarget, error)
	SaveMessagesPhoto(ctx context.Context, photo string, server int, hash string) ([]vkapi.SavedPhoto, error)
}

// AssetReference identifies an uploaded item in outgoing messages, e.g.
// "photo7_42". Only Flow creates them.
type AssetReference struct {
	kind    string
	ownerID int
	id      int
}

func (r AssetReference) String() string {
	if r.kind == "" {
		return ""
	}
	return r.kind + strconv.Itoa(r.ownerID) + "_" + strconv.Itoa(r.id)
}

// IsZero reports whether r was never set.
func (r AssetReference) IsZero() bool {
	return r.kind == ""
}

// transferResult is what the upload server answers after a multipart POST.
type transferResult struct {
	Server int    `json:"server"`
	Photo  string `json:"photo"`
	Hash   string `json:"hash"`
}

// Flow uploads a local photo and registers it as a message attachment.
type Flow struct {
	api       API
	transport transport.Transport
	logger    *zap.Logger
}

// NewFlow creates an upload flow.
func NewFlow(api API, t transport.Transport, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{api: api, transport: t, logger: logger}
}

// UploadAndRegister runs the get-target → transfer → save sequence for the
// file at path and returns the reference to attach. Any step failing fails
// the whole call; nothing is retried.
func (f *Flow) UploadAndRegister(ctx context.Context, path string, peerID int) (ref AssetReference, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.Uploads.WithLabelValues(result).Inc()
	}()

	if err := checkFile(path); err != nil {
		return AssetReference{}, err
	}

	target, err := f.api.GetMessagesUploadServer(ctx, peerID)
	if err != nil {
		return AssetReference{}, fmt.Errorf("upload: get upload server: %w", err)
	}

	body, err := f.transport.PostMultipart(ctx, target.UploadURL, formField, path)
	if err != nil {
		return AssetReference{}, fmt.Errorf("upload: transfer: %w", err)
	}

	transfer, err := decodeTransfer(body)
	if err != nil {
		return AssetReference{}, err
	}

	saved, err := f.api.SaveMessagesPhoto(ctx, transfer.Photo, transfer.Server, transfer.Hash)
	if err != nil {
		return AssetReference{}, fmt.Errorf("upload: save photo: %w", err)
	}

	ref, err = photoReference(saved)
	if err != nil {
		return AssetReference{}, err
	}
	f.logger.Info("photo uploaded",
		zap.Int("peer_id", peerID),
		zap.String("attachment", ref.String()),
	)
	return ref, nil
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return fmt.Errorf("%w: %s: %v", ErrFileAccess, path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrFileAccess, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFileAccess, path, err)
	}
	return file.Close()
}

func decodeTransfer(body []byte) (transferResult, error) {
	var result transferResult
	if err := json.Unmarshal(body, &result); err != nil {
		return transferResult{}, &vkapi.DecodeError{What: "upload server response", Err: err}
	}
	// The upload server answers "[]" in photo when it rejected the file.
	if result.Photo == "" || result.Photo == "[]" || result.Hash == "" {
		return transferResult{}, &vkapi.DecodeError{What: "upload server response", Err: fmt.Errorf("photo or hash missing")}
	}
	return result, nil
}

func photoReference(saved []vkapi.SavedPhoto) (AssetReference, error) {
	if len(saved) == 0 {
		return AssetReference{}, &vkapi.DecodeError{What: "photos.saveMessagesPhoto result", Err: fmt.Errorf("empty result list")}
	}
	first := saved[0]
	if first.ID == 0 || first.OwnerID == 0 {
		return AssetReference{}, &vkapi.DecodeError{What: "photos.saveMessagesPhoto result", Err: fmt.Errorf("owner_id or id missing")}
	}
	return AssetReference{kind: "photo", ownerID: first.OwnerID, id: first.ID}, nil
}
