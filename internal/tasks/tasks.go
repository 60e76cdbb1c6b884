package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding for image.Decode
	"io"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"

	"relove/market/internal/config"
	"relove/market/internal/email"
	"relove/market/internal/services"
	"relove/market/internal/storage"
)

// Task types handled by the background worker.
const (
	TypeEmailDelivery = "email:deliver"
	TypeImageProcess  = "image:process"
	TypeReconcile     = "marketplace:reconcile"
)

// --- Task Client (Enqueuing tasks) ---

func NewClient(rdb *redis.Client) *asynq.Client {
	clientOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}
	return asynq.NewClient(clientOpt)
}

// Queue wraps an asynq client behind the narrow interface the services use.
type Queue struct {
	client *asynq.Client
}

// NewQueue creates a new Queue.
func NewQueue(client *asynq.Client) *Queue {
	return &Queue{client: client}
}

var _ services.ITaskQueue = (*Queue)(nil)

// EnqueueReconcile schedules a repair pass over the marketplace flags. The
// task ID dedupes concurrent requests so a burst of missed writes produces a
// single pass.
func (q *Queue) EnqueueReconcile(ctx context.Context) error {
	task := asynq.NewTask(TypeReconcile, nil)
	_, err := q.client.EnqueueContext(ctx, task, asynq.TaskID("reconcile:pending"), asynq.Queue("critical"))
	if err != nil && errors.Is(err, asynq.ErrTaskIDConflict) {
		// A pass is already queued, nothing to do.
		return nil
	}
	return err
}

// EnqueueEmail schedules a notification for delivery.
func (q *Queue) EnqueueEmail(ctx context.Context, job services.EmailJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal email job: %w", err)
	}
	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(TypeEmailDelivery, payload), asynq.MaxRetry(5))
	return err
}

// EnqueueImageResize schedules a downscale pass for an uploaded product photo.
func (q *Queue) EnqueueImageResize(ctx context.Context, objectKey string) error {
	payload, err := json.Marshal(ImageTaskPayload{S3Key: objectKey})
	if err != nil {
		return fmt.Errorf("failed to marshal image task payload: %w", err)
	}
	// Give the browser time to finish the pre-signed upload before we look
	// for the object.
	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(TypeImageProcess, payload),
		asynq.Queue("images"), asynq.ProcessIn(time.Minute))
	return err
}

// --- Task Server (Processing tasks) ---

// TaskProcessor holds the dependencies needed by task handlers.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	bookings    services.IBookingService
	storage     storage.IS3Storage
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	bookings services.IBookingService,
	s3Storage storage.IS3Storage,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: emailSender,
		bookings:    bookings,
		storage:     s3Storage,
	}
}

// SetupServer configures an Asynq server with the marketplace task handlers
// registered. The caller is responsible for running it.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	serverOpt := asynq.RedisClientOpt{
		Addr:     rdb.Options().Addr,
		Password: rdb.Options().Password,
		DB:       rdb.Options().DB,
	}

	srv := asynq.NewServer(
		serverOpt,
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"images":   1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypeReconcile, processor.HandleReconcileTask)
	mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)

	return srv, mux
}

// SetupScheduler returns a scheduler that runs the reconcile pass on a fixed
// interval, so flags diverged by a crashed request heal without waiting for
// the next miss to be noticed.
func SetupScheduler(rdb *redis.Client, interval time.Duration) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:     rdb.Options().Addr,
			Password: rdb.Options().Password,
			DB:       rdb.Options().DB,
		},
		&asynq.SchedulerOpts{},
	)

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := scheduler.Register(spec, asynq.NewTask(TypeReconcile, nil), asynq.Queue("critical")); err != nil {
		return nil, fmt.Errorf("failed to register reconcile schedule: %w", err)
	}
	return scheduler, nil
}

// --- Task Handlers ---

// HandleEmailDeliveryTask builds the raw message for a queued notification
// and hands it to the configured sender.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var job services.EmailJob
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if job.To == "" {
		return fmt.Errorf("email job has no recipient: %w", asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s for email to %s", fromAddress, job.To)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("To: %s\r\n", job.To))
	sb.WriteString(fmt.Sprintf("From: %s\r\n", fromAddress))
	sb.WriteString(fmt.Sprintf("Subject: %s\r\n", job.Subject))
	sb.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(job.Body)
	sb.WriteString("\r\n")

	if err := p.emailSender.Send(ctx, []string{job.To}, job.Subject, []byte(sb.String())); err != nil {
		log.Printf("Email sending failed (will retry): %v", err)
		return err
	}

	log.Printf("Email task processed successfully: To=%s, Subject=%s", job.To, job.Subject)
	return nil
}

// HandleReconcileTask repairs product flags and replays missed payment
// cascades.
func (p *TaskProcessor) HandleReconcileTask(ctx context.Context, t *asynq.Task) error {
	stats, err := p.bookings.Reconcile(ctx)
	if err != nil {
		log.Printf("Reconcile pass failed: %v", err)
		return err
	}
	log.Printf("Reconcile pass done: booked flags set=%d, cleared=%d, payment cascades replayed=%d",
		stats.BookedFlagsSet, stats.BookedFlagsCleared, stats.CascadesReplayed)
	return nil
}

// ImageTaskPayload names the uploaded object to normalize.
type ImageTaskPayload struct {
	S3Key string `json:"s3_key"`
}

// HandleImageProcessTask downloads an uploaded product photo, downsizes it
// when it exceeds the configured dimension and writes it back in place.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.storage == nil {
		return fmt.Errorf("image storage not configured: %w", asynq.SkipRetry)
	}
	s3Client := p.storage.Client()

	log.Printf("Processing image task: S3Key=%s", payload.S3Key)

	getObjectOutput, err := s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.AwsS3Bucket),
		Key:    aws.String(payload.S3Key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			log.Printf("S3 object %s not found, likely upload failed or key incorrect.", payload.S3Key)
			return fmt.Errorf("s3 object not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download image from S3: %w", err)
	}
	defer getObjectOutput.Body.Close()

	imgData, err := io.ReadAll(getObjectOutput.Body)
	if err != nil {
		return fmt.Errorf("failed to read image data for key %s: %w", payload.S3Key, err)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Printf("Error decoding image for key %s: %v", payload.S3Key, err)
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}
	log.Printf("Decoded image %s, format: %s, size: %dx%d", payload.S3Key, format, img.Bounds().Dx(), img.Bounds().Dy())

	maxDim := uint(p.cfg.ImageMaxDimension)
	if uint(img.Bounds().Dx()) <= maxDim && uint(img.Bounds().Dy()) <= maxDim {
		return nil
	}

	resized := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("failed to re-encode resized image %s: %w", payload.S3Key, err)
	}

	_, err = s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.cfg.AwsS3Bucket),
		Key:         aws.String(payload.S3Key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload processed image %s: %w", payload.S3Key, err)
	}

	log.Printf("Resized image %s to %dx%d", payload.S3Key, resized.Bounds().Dx(), resized.Bounds().Dy())
	return nil
}
