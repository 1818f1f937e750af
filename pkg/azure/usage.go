package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/consumption/armconsumption"
	"go.uber.org/zap"
	"k8s.io/utils/ptr"

	apperrors "github.com/kubestellar/aks-console/pkg/errors"
	"github.com/kubestellar/aks-console/pkg/models"
)

// UsageDetails returns the usage-detail rows of the session's subscription
// between from and to. Rows are returned as billed; grouping happens in the
// cost package.
func (c *Client) UsageDetails(ctx context.Context, from, to time.Time) ([]models.UsageRecord, error) {
	if c.subscriptionID == "" {
		return nil, apperrors.New(apperrors.ErrCodeConfiguration, "a subscription id is required for cost queries")
	}

	client, err := armconsumption.NewUsageDetailsClient(c.cred, c.options)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeInternal, "create usage details client", err)
	}

	scope := "/subscriptions/" + c.subscriptionID
	filter := fmt.Sprintf("properties/usageStart ge '%s' and properties/usageEnd le '%s'",
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	opts := &armconsumption.UsageDetailsClientListOptions{
		Expand: ptr.To("properties/meterDetails"),
		Filter: ptr.To(filter),
	}

	seq := FromPager(
		func() *runtime.Pager[armconsumption.UsageDetailsClientListResponse] {
			return client.NewListPager(scope, opts)
		},
		func(page armconsumption.UsageDetailsClientListResponse) []models.UsageRecord {
			out := make([]models.UsageRecord, 0, len(page.Value))
			for _, v := range page.Value {
				if rec, ok := usageRecord(v); ok {
					out = append(out, rec)
				}
			}
			return out
		},
	)

	records, err := seq.Drain(ctx)
	if err != nil {
		return nil, classify("list usage details", CostRemedy(c.subscriptionID), err)
	}
	c.logger.Debug("read usage details", zap.Int("rows", len(records)), zap.String("scope", scope))
	return records, nil
}

// usageRecord flattens the legacy and modern usage-detail shapes. Rows of
// other kinds are skipped.
func usageRecord(v armconsumption.UsageDetailClassification) (models.UsageRecord, bool) {
	switch d := v.(type) {
	case *armconsumption.LegacyUsageDetail:
		p := d.Properties
		if p == nil {
			return models.UsageRecord{}, false
		}
		rec := models.UsageRecord{
			Name: ptr.Deref(p.ResourceName, ""),
			Cost: ptr.Deref(p.Cost, 0),
		}
		if md := p.MeterDetails; md != nil {
			rec.MeterCategory = ptr.Deref(md.MeterCategory, "")
			if rec.Name == "" {
				rec.Name = ptr.Deref(md.MeterName, "")
			}
		}
		return rec, true
	case *armconsumption.ModernUsageDetail:
		p := d.Properties
		if p == nil {
			return models.UsageRecord{}, false
		}
		rec := models.UsageRecord{
			Name:          ptr.Deref(p.InstanceName, ""),
			MeterCategory: ptr.Deref(p.MeterCategory, ""),
			Cost:          ptr.Deref(p.CostInBillingCurrency, 0),
		}
		if rec.Name == "" {
			rec.Name = ptr.Deref(p.MeterName, "")
		}
		return rec, true
	}
	return models.UsageRecord{}, false
}
