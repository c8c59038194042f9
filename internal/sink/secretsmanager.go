package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	secretsconfig "github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/router"
)

type secretsManagerSink struct {
	spec    secretsconfig.SinkSpec
	opts    *secretsconfig.SecretsManagerOptions
	client  *secretsmanager.Client
	limiter *rate.Limiter
}

func newSecretsManagerSink(spec secretsconfig.SinkSpec, awsCfg aws.Config) (*secretsManagerSink, error) {
	opts := spec.Secrets
	if opts == nil {
		return nil, fmt.Errorf("sink %q: missing secrets_manager options", spec.Name)
	}
	_, rps := secretsconfig.SinkLimits(spec)
	return &secretsManagerSink{
		spec:    spec,
		opts:    opts,
		client:  secretsmanager.NewFromConfig(awsCfg),
		limiter: newLimiter(rps),
	}, nil
}

// secretState is what a DescribeSecret + GetSecretValue pair reveals about
// an existing secret, enough to classify the outcome of §4.9.
type secretState struct {
	value       string
	description string
}

func (s *secretsManagerSink) Write(ctx context.Context, it router.RoutedItem, dryRun bool) Event {
	l := log.WithFields(log.Fields{"action": "sink.secretsManager.Write", "sink": s.spec.Name, "name": it.Name})

	existing, err := s.describe(ctx, it.Name)
	if err != nil && !isSecretNotFound(err) {
		l.WithError(err).Warn("failed to read existing secret, proceeding to write")
		existing = nil
	}

	outcome, old := classifySecret(existing, it.Value, it.Description)
	if outcome == OutcomeUnchanged {
		return Event{FullName: it.Name, Outcome: OutcomeUnchanged, OldValue: old, NewValue: it.Value, DryRun: dryRun}
	}
	if outcome == OutcomeChanged && !s.opts.Overwrite {
		return Event{FullName: it.Name, Outcome: OutcomeFailed, FailReason: FailReasonExists, OldValue: old, NewValue: it.Value,
			Err: fmt.Errorf("secret %q exists and overwrite is disabled", it.Name)}
	}

	if dryRun {
		return Event{FullName: it.Name, Outcome: outcome, OldValue: old, NewValue: it.Value, DryRun: true}
	}

	err = withRetry(ctx, func() error {
		if wErr := acquire(ctx, s.limiter); wErr != nil {
			return wErr
		}
		if existing == nil {
			return s.create(ctx, it)
		}
		return s.update(ctx, it)
	})
	if err != nil {
		l.WithError(err).Error("failed to write secret")
		return Event{FullName: it.Name, Outcome: OutcomeFailed, FailReason: FailReasonAWS, OldValue: old, NewValue: it.Value, Err: err}
	}

	return Event{FullName: it.Name, Outcome: outcome, OldValue: old, NewValue: it.Value}
}

func (s *secretsManagerSink) create(ctx context.Context, it router.RoutedItem) error {
	input := &secretsmanager.CreateSecretInput{
		Name:         aws.String(it.Name),
		SecretString: aws.String(it.Value),
	}
	if it.Description != "" {
		input.Description = aws.String(it.Description)
	}
	if s.opts.KMSKeyID != "" {
		input.KmsKeyId = aws.String(s.opts.KMSKeyID)
	}
	_, err := s.client.CreateSecret(ctx, input)
	return err
}

// update uses UpdateSecret rather than the bare PutSecretValue operation:
// PutSecretValue only rotates the value, it cannot change Description, and
// the description-only-difference case of SPEC_FULL.md §4.9 requires both
// to move together.
func (s *secretsManagerSink) update(ctx context.Context, it router.RoutedItem) error {
	input := &secretsmanager.UpdateSecretInput{
		SecretId:     aws.String(it.Name),
		SecretString: aws.String(it.Value),
	}
	if it.Description != "" {
		input.Description = aws.String(it.Description)
	}
	if s.opts.KMSKeyID != "" {
		input.KmsKeyId = aws.String(s.opts.KMSKeyID)
	}
	_, err := s.client.UpdateSecret(ctx, input)
	return err
}

func (s *secretsManagerSink) describe(ctx context.Context, name string) (*secretState, error) {
	if err := acquire(ctx, s.limiter); err != nil {
		return nil, err
	}
	desc, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{SecretId: aws.String(name)})
	if err != nil {
		return nil, err
	}

	if err := acquire(ctx, s.limiter); err != nil {
		return nil, err
	}
	val, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(name)})
	if err != nil {
		return nil, err
	}

	state := &secretState{value: aws.ToString(val.SecretString)}
	if desc.Description != nil {
		state.description = *desc.Description
	}
	return state, nil
}

func isSecretNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}

// classifySecret implements the Secrets Manager variant of the outcome
// table: unchanged requires identical value AND identical description; a
// description-only difference is classified changed (decided Open
// Question, SPEC_FULL.md §9).
func classifySecret(existing *secretState, newValue, newDescription string) (Outcome, string) {
	if existing == nil {
		return OutcomeCreated, ""
	}
	if existing.value == newValue && existing.description == newDescription {
		return OutcomeUnchanged, existing.value
	}
	return OutcomeChanged, existing.value
}
