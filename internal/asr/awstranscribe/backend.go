// Package awstranscribe implements transcription with Amazon Transcribe
// batch jobs. Audio is staged in S3, the job writes its JSON result back to
// the same bucket, and the result items are regrouped into sentences.
package awstranscribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/tiroq/memoscribe/internal/asr"
	"github.com/tiroq/memoscribe/internal/diaglog"
	"github.com/tiroq/memoscribe/internal/media"
)

// Name identifies this backend in config and logs.
const Name = "aws_transcribe"

// Config configures the backend.
type Config struct {
	Region              string `json:"region"`
	Bucket              string `json:"bucket"`
	Prefix              string `json:"prefix"`                // default "memoscribe/"
	PollIntervalSeconds int    `json:"poll_interval_seconds"` // default 5
	KeepMedia           bool   `json:"keep_media"`
}

// ObjectStore is the subset of the S3 client the backend uses.
type ObjectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// JobAPI is the subset of the Transcribe client the backend uses.
type JobAPI interface {
	StartTranscriptionJob(ctx context.Context, in *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, in *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
}

// Backend runs one Transcribe job per call.
type Backend struct {
	cfg   Config
	store ObjectStore
	jobs  JobAPI
	poll  time.Duration

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// New loads the default AWS credential chain for cfg.Region.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("aws transcribe: bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithClients(cfg, s3.NewFromConfig(awsCfg), transcribe.NewFromConfig(awsCfg)), nil
}

// NewWithClients wires explicit clients.
func NewWithClients(cfg Config, store ObjectStore, jobs JobAPI) *Backend {
	if cfg.Prefix == "" {
		cfg.Prefix = "memoscribe/"
	}
	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = 5
	}
	return &Backend{
		cfg:   cfg,
		store: store,
		jobs:  jobs,
		poll:  time.Duration(cfg.PollIntervalSeconds) * time.Second,
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (b *Backend) SetLogger(l *diaglog.Logger) {
	b.loggerMu.Lock()
	b.logger = l
	b.loggerMu.Unlock()
}

func (b *Backend) log(entry diaglog.LogEntry) {
	b.loggerMu.RLock()
	l := b.logger
	b.loggerMu.RUnlock()
	if l == nil {
		return
	}
	entry.Component = diaglog.ComponentASR
	l.Log(entry)
}

func (b *Backend) Name() string { return Name }

// Transcribe uploads the payload, starts a job, waits for it and parses the
// result. The staged media and result are deleted unless KeepMedia is set.
func (b *Backend) Transcribe(ctx context.Context, encodedAudio, language string) (*asr.Transcript, error) {
	mimeType, audio, err := media.DecodeDataURI(encodedAudio)
	if err != nil {
		return nil, b.fail(err)
	}
	format, ok := mediaFormats[mimeType]
	if !ok {
		return nil, b.fail(fmt.Errorf("%w: %s is not accepted by Amazon Transcribe", media.ErrUnsupportedFormat, mimeType))
	}
	langCode, ok := languageCodes[language]
	if !ok {
		return nil, b.fail(fmt.Errorf("%w: %q", media.ErrUnsupportedLanguage, language))
	}

	id := uuid.NewString()
	jobName := "memoscribe-" + id
	mediaKey := b.cfg.Prefix + id + media.ExtensionFor(mimeType)
	resultKey := b.cfg.Prefix + jobName + ".json"

	if _, err := b.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.cfg.Bucket),
		Key:         aws.String(mediaKey),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String(mimeType),
	}); err != nil {
		return nil, b.fail(fmt.Errorf("upload media: %w", err))
	}
	if !b.cfg.KeepMedia {
		defer b.cleanup(mediaKey, resultKey)
	}

	if _, err := b.jobs.StartTranscriptionJob(ctx, &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(jobName),
		LanguageCode:         langCode,
		MediaFormat:          format,
		Media:                &types.Media{MediaFileUri: aws.String(fmt.Sprintf("s3://%s/%s", b.cfg.Bucket, mediaKey))},
		OutputBucketName:     aws.String(b.cfg.Bucket),
		OutputKey:            aws.String(resultKey),
	}); err != nil {
		return nil, b.fail(fmt.Errorf("start job: %w", err))
	}
	b.log(diaglog.LogEntry{Event: diaglog.EventTranscribeStart, Payload: map[string]interface{}{"job": jobName}})

	if err := b.wait(ctx, jobName); err != nil {
		return nil, b.fail(err)
	}

	out, err := b.store.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(resultKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, b.fail(fmt.Errorf("job %s finished without a result object", jobName))
		}
		return nil, b.fail(fmt.Errorf("fetch result: %w", err))
	}
	defer out.Body.Close()

	t, err := parseResult(out.Body)
	if err != nil {
		return nil, b.fail(err)
	}
	t.Language = language
	return t, nil
}

// wait polls the job until it completes or fails.
func (b *Backend) wait(ctx context.Context, jobName string) error {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		out, err := b.jobs.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
			TranscriptionJobName: aws.String(jobName),
		})
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("job status: %w", err)
		}
		job := out.TranscriptionJob
		if job == nil {
			continue
		}
		switch job.TranscriptionJobStatus {
		case types.TranscriptionJobStatusCompleted:
			return nil
		case types.TranscriptionJobStatusFailed:
			reason := aws.ToString(job.FailureReason)
			if reason == "" {
				reason = "unknown reason"
			}
			return fmt.Errorf("transcription job failed: %s", reason)
		}
	}
}

// cleanup deletes staged objects on a detached context so a cancelled
// call still removes its media.
func (b *Backend) cleanup(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if _, err := b.store.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.cfg.Bucket),
			Key:    aws.String(key),
		}); err != nil && !isNotFound(err) {
			b.log(diaglog.LogEntry{Event: diaglog.EventTranscribeFailed, Reason: "cleanup: " + err.Error()})
		}
	}
}

// HealthCheck verifies the staging bucket is reachable.
func (b *Backend) HealthCheck(ctx context.Context) (*asr.HealthStatus, error) {
	start := time.Now()
	_, err := b.store.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.cfg.Bucket)})
	status := &asr.HealthStatus{Backend: Name, Latency: time.Since(start), OK: err == nil, Message: "healthy"}
	if err != nil {
		status.Message = fmt.Sprintf("bucket %s unreachable: %s", b.cfg.Bucket, apiMessage(err))
	}
	return status, nil
}

func (b *Backend) fail(err error) error {
	return &asr.CapabilityError{Op: asr.OpTranscribe, Backend: Name, Err: err}
}

// isNotFound matches S3 and Transcribe not-found error codes.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFoundException", "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}

func apiMessage(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorMessage() != "" {
		return apiErr.ErrorMessage()
	}
	return err.Error()
}

var mediaFormats = map[string]types.MediaFormat{
	"audio/mpeg": types.MediaFormatMp3,
	"audio/wav":  types.MediaFormatWav,
	"audio/mp4":  types.MediaFormatM4a,
	"audio/flac": types.MediaFormatFlac,
	"audio/ogg":  types.MediaFormatOgg,
	"video/mp4":  types.MediaFormatMp4,
	"video/webm": types.MediaFormatWebm,
}

var languageCodes = map[string]types.LanguageCode{
	"de":    types.LanguageCodeDeDe,
	"en":    types.LanguageCodeEnUs,
	"en-GB": types.LanguageCodeEnGb,
	"es":    types.LanguageCodeEsEs,
	"fr":    types.LanguageCodeFrFr,
	"it":    types.LanguageCodeItIt,
	"ja":    types.LanguageCodeJaJp,
	"ko":    types.LanguageCodeKoKr,
	"pt-BR": types.LanguageCodePtBr,
}
