package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"priceflow/logger"
)

// MetricDataPutter is the part of the CloudWatch client used for publishing.
type MetricDataPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

type cloudWatchState struct {
	client    MetricDataPutter
	namespace string
}

var cwState atomic.Pointer[cloudWatchState]

// publishTimeout bounds each PutMetricData call.
const publishTimeout = 5 * time.Second

// InitCloudWatch creates the CloudWatch client. An empty region falls back to
// the default AWS resolution chain.
func InitCloudWatch(ctx context.Context, region, namespace string) error {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	UseCloudWatchClient(cloudwatch.NewFromConfig(cfg), namespace)

	logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{
		"region":    cfg.Region,
		"namespace": namespace,
	}).Info("initialized CloudWatch client")
	return nil
}

// UseCloudWatchClient installs client as the publishing target; nil disables
// publishing.
func UseCloudWatchClient(client MetricDataPutter, namespace string) {
	if client == nil {
		cwState.Store(nil)
		return
	}
	if namespace == "" {
		namespace = "Priceflow"
	}
	cwState.Store(&cloudWatchState{client: client, namespace: namespace})
}

// EmitMetric logs a metric, dispatches it to registered handlers and
// publishes it to CloudWatch when a client is installed.
func EmitMetric(log *logger.Log, component string, name string, value float64, fields logger.Fields) {
	m, ok := recordMetric(log, component, name, value, fields)
	if !ok {
		return
	}
	publishMetricDatum(m)
}

func publishMetricDatum(m Metric) {
	state := cwState.Load()
	if state == nil || state.client == nil {
		return
	}
	log := logger.GetLogger().WithComponent("cloudwatch")

	unit, ok := metricUnitFromString(m.Unit)
	if !ok {
		log.WithFields(logger.Fields{"metric": m.Name, "unit": m.Unit}).Debug("unsupported metric unit; defaulting to Count")
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(m.Component)}}
	for k, v := range m.Fields {
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	_, err := state.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(state.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: aws.String(m.Name),
			Dimensions: dims,
			Timestamp:  aws.Time(m.Timestamp),
			Unit:       unit,
			Value:      aws.Float64(m.Value),
		}},
	})
	if err != nil {
		log.WithError(err).WithField("metric", m.Name).Warn("failed to publish CloudWatch metric")
		return
	}
	log.WithField("metric", m.Name).Debug("published metric to CloudWatch")
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "milliseconds", "ms":
		return cwtypes.StandardUnitMilliseconds, true
	case "seconds":
		return cwtypes.StandardUnitSeconds, true
	default:
		return cwtypes.StandardUnitCount, false
	}
}
