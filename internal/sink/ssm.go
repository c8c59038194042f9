package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	secretsconfig "github.com/Josh5/secrets-sync/internal/config"
	"github.com/Josh5/secrets-sync/internal/router"
)

const (
	ssmAdvancedTierThreshold = 4096
	ssmMaxValueLength        = 8192
)

type ssmSink struct {
	spec    secretsconfig.SinkSpec
	opts    *secretsconfig.SSMOptions
	client  *ssm.Client
	limiter *rate.Limiter
}

func newSSMSink(spec secretsconfig.SinkSpec, awsCfg aws.Config) (*ssmSink, error) {
	opts := spec.SSM
	if opts == nil {
		return nil, fmt.Errorf("sink %q: missing ssm options", spec.Name)
	}
	paramType := opts.Type
	if paramType == "" {
		paramType = secretsconfig.SSMTypeSecureString
	}
	if paramType != secretsconfig.SSMTypeSecureString && paramType != secretsconfig.SSMTypeString {
		return nil, fmt.Errorf("sink %q: invalid ssm.type %q", spec.Name, opts.Type)
	}

	_, rps := secretsconfig.SinkLimits(spec)
	return &ssmSink{
		spec:    spec,
		opts:    opts,
		client:  ssm.NewFromConfig(awsCfg),
		limiter: newLimiter(rps),
	}, nil
}

func (s *ssmSink) Write(ctx context.Context, it router.RoutedItem, dryRun bool) Event {
	l := log.WithFields(log.Fields{"action": "sink.ssm.Write", "sink": s.spec.Name, "name": it.Name})

	valueLen := len(it.Value)
	if valueLen > ssmMaxValueLength {
		l.WithField("length", valueLen).Warn("parameter value exceeds SSM maximum, failing item")
		return Event{FullName: it.Name, Outcome: OutcomeFailed, FailReason: FailReasonTooLarge,
			Err: fmt.Errorf("value length %d exceeds SSM maximum of %d bytes", valueLen, ssmMaxValueLength)}
	}

	existing, err := s.get(ctx, it.Name)
	if err != nil && !isNotFound(err) {
		l.WithError(err).Warn("failed to read existing parameter, proceeding to write")
		existing = nil
	}

	outcome, old := classify(existing, it.Value)
	if outcome == OutcomeUnchanged {
		return Event{FullName: it.Name, Outcome: OutcomeUnchanged, OldValue: old, NewValue: it.Value, DryRun: dryRun}
	}
	if outcome == OutcomeChanged && !s.opts.Overwrite {
		return Event{FullName: it.Name, Outcome: OutcomeFailed, FailReason: FailReasonExists, OldValue: old, NewValue: it.Value,
			Err: fmt.Errorf("parameter %q exists and overwrite is disabled", it.Name)}
	}

	if dryRun {
		return Event{FullName: it.Name, Outcome: outcome, OldValue: old, NewValue: it.Value, DryRun: true}
	}

	tier := types.ParameterTierStandard
	if valueLen > ssmAdvancedTierThreshold {
		tier = types.ParameterTierAdvanced
		l.WithField("length", valueLen).Warn("promoting parameter to Advanced tier")
	}

	input := &ssm.PutParameterInput{
		Name:      aws.String(it.Name),
		Value:     aws.String(it.Value),
		Type:      types.ParameterType(s.typeOrDefault()),
		Tier:      tier,
		Overwrite: aws.Bool(true),
	}
	if s.opts.KMSKeyID != "" && s.typeOrDefault() == secretsconfig.SSMTypeSecureString {
		input.KeyId = aws.String(s.opts.KMSKeyID)
	}

	err = withRetry(ctx, func() error {
		if wErr := acquire(ctx, s.limiter); wErr != nil {
			return wErr
		}
		_, putErr := s.client.PutParameter(ctx, input)
		return putErr
	})
	if err != nil {
		l.WithError(err).Error("failed to write parameter")
		return Event{FullName: it.Name, Outcome: OutcomeFailed, FailReason: FailReasonAWS, OldValue: old, NewValue: it.Value, Err: err}
	}

	return Event{FullName: it.Name, Outcome: outcome, OldValue: old, NewValue: it.Value}
}

func (s *ssmSink) typeOrDefault() string {
	if s.opts.Type == "" {
		return secretsconfig.SSMTypeSecureString
	}
	return s.opts.Type
}

func (s *ssmSink) get(ctx context.Context, name string) (*string, error) {
	if err := acquire(ctx, s.limiter); err != nil {
		return nil, err
	}
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	return out.Parameter.Value, nil
}

func isNotFound(err error) bool {
	var notFound *types.ParameterNotFound
	return errors.As(err, &notFound)
}

// classify implements the outcome table of SPEC_FULL.md §4.9 shared by both
// sinks: absent → created, equal value → unchanged, differing value →
// changed (subject to the caller's overwrite check).
func classify(existing *string, newValue string) (Outcome, string) {
	if existing == nil {
		return OutcomeCreated, ""
	}
	if *existing == newValue {
		return OutcomeUnchanged, *existing
	}
	return OutcomeChanged, *existing
}
