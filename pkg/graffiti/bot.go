package graffiti

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/HKUDS/graffitibot-go/pkg/events"
	"github.com/HKUDS/graffitibot-go/pkg/imaging"
	"github.com/HKUDS/graffitibot-go/pkg/upload"
	"github.com/HKUDS/graffitibot-go/pkg/vkapi"
	"go.uber.org/zap"
)

// Replies sent to users.
const (
	ReplyMissingInput = "Error! No text or photo is specified."
	ReplyStarted      = "Photo received! I'm starting work..."
	ReplyDone         = "Here is your photo!"
)

// DefaultCharacterSize is used when the caption carries no size.
const DefaultCharacterSize = 100

// Sender delivers replies.
type Sender interface {
	Send(ctx context.Context, userID int, msg vkapi.OutboundMessage) error
}

// Fetcher downloads the received photo.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Uploader turns a local file into an attachment reference.
type Uploader interface {
	UploadAndRegister(ctx context.Context, path string, peerID int) (upload.AssetReference, error)
}

// Config holds the dependencies and settings of a Bot.
type Config struct {
	Sender   Sender
	Fetcher  Fetcher
	Uploader Uploader
	Composer imaging.Composer
	// CacheDir receives the composed image until it is uploaded. Empty
	// means os.TempDir().
	CacheDir             string
	DefaultCharacterSize float64
	Logger               *zap.Logger
}

// Bot answers a photo with a caption by drawing the caption onto the photo.
type Bot struct {
	sender      Sender
	fetcher     Fetcher
	uploader    Uploader
	composer    imaging.Composer
	cacheDir    string
	defaultSize float64
	logger      *zap.Logger
}

// New creates a Bot.
func New(cfg Config) (*Bot, error) {
	if cfg.Sender == nil || cfg.Fetcher == nil || cfg.Uploader == nil || cfg.Composer == nil {
		return nil, fmt.Errorf("graffiti: sender, fetcher, uploader and composer are required")
	}
	size := cfg.DefaultCharacterSize
	if size <= 0 {
		size = DefaultCharacterSize
	}
	dir := cfg.CacheDir
	if dir == "" {
		dir = os.TempDir()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		sender:      cfg.Sender,
		fetcher:     cfg.Fetcher,
		uploader:    cfg.Uploader,
		composer:    cfg.Composer,
		cacheDir:    dir,
		defaultSize: size,
		logger:      logger,
	}, nil
}

// Notify sends a plain text message; it lets the bot report failures
// through events.Guard.
func (b *Bot) Notify(ctx context.Context, userID int, text string) error {
	return b.sender.Send(ctx, userID, vkapi.OutboundMessage{Text: text})
}

// HandleMessage processes one incoming message. Errors are meant to be
// reported to the user by events.Guard.
func (b *Bot) HandleMessage(ctx context.Context, msg events.NewMessage) error {
	caption := ParseCaption(msg.Text)
	photos := msg.Photos()
	if caption.Text == "" || len(photos) == 0 {
		return b.Notify(ctx, msg.FromID, ReplyMissingInput)
	}
	if !caption.HasSize {
		caption.Size = b.defaultSize
	}

	size, ok := photos[0].Largest()
	if !ok {
		return fmt.Errorf("graffiti: photo %d has no sizes", photos[0].ID)
	}

	log := b.logger.With(zap.Int("from_id", msg.FromID))
	log.Info("graffiti requested",
		zap.Float64("size", caption.Size),
		zap.Int("width", size.Width),
		zap.Int("height", size.Height),
	)

	data, err := b.fetcher.Get(ctx, size.URL)
	if err != nil {
		return fmt.Errorf("graffiti: download photo: %w", err)
	}
	src, _, err := imaging.Decode(data)
	if err != nil {
		return err
	}

	if err := b.Notify(ctx, msg.FromID, ReplyStarted); err != nil {
		return err
	}

	out, err := b.composer.Compose(src, caption.Text, caption.Size)
	if err != nil {
		return err
	}

	attachment, err := b.uploadImage(ctx, out, msg.FromID)
	if err != nil {
		return err
	}

	return b.sender.Send(ctx, msg.FromID, vkapi.OutboundMessage{
		Text:       ReplyDone,
		Attachment: attachment.String(),
	})
}

// uploadImage stores img in the cache directory for the duration of the
// upload and removes it on every path.
func (b *Bot) uploadImage(ctx context.Context, img image.Image, peerID int) (upload.AssetReference, error) {
	path, err := imaging.WriteTempJPEG(b.cacheDir, img)
	if err != nil {
		return upload.AssetReference{}, err
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			b.logger.Warn("failed to remove cached image", zap.String("path", path), zap.Error(err))
		}
	}()

	return b.uploader.UploadAndRegister(ctx, path, peerID)
}
