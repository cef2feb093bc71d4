package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tally/internal/billingperiod/domain"
	"github.com/smallbiznis/tally/internal/billingperiod/repository"
	"github.com/smallbiznis/tally/internal/clock"
	plandomain "github.com/smallbiznis/tally/internal/plan/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupPeriodService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.BillingPeriod{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, db
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func assertContiguous(t *testing.T, periods []domain.BillingPeriod) {
	t.Helper()
	for i, p := range periods {
		assert.True(t, p.StartDate.Before(p.EndDate), "period %d start must precede end", i)
		if i > 0 {
			assert.True(t, p.StartDate.Equal(periods[i-1].EndDate),
				"period %d must start where period %d ends", i, i-1)
		}
	}
}

func TestGeneratePeriodsMonthly(t *testing.T) {
	svc, _ := setupPeriodService(t)

	start := date(2024, time.January, 15)
	end := date(2024, time.July, 15)
	periods := svc.GeneratePeriods(1, plandomain.FrequencyMonthly, start, &end)

	require.Len(t, periods, 6)
	assertContiguous(t, periods)
	assert.True(t, periods[0].StartDate.Equal(start))
	assert.True(t, periods[0].EndDate.Equal(date(2024, time.February, 15)))
	assert.True(t, periods[5].EndDate.Equal(end))
}

func TestGeneratePeriodsClampsShortMonths(t *testing.T) {
	svc, _ := setupPeriodService(t)

	// 2024 is a leap year.
	leap := svc.GeneratePeriods(1, plandomain.FrequencyMonthly, date(2024, time.January, 31), nil)
	require.NotEmpty(t, leap)
	assert.True(t, leap[0].EndDate.Equal(date(2024, time.February, 29)),
		"Jan 31 + 1 month should clamp to Feb 29, got %s", leap[0].EndDate)
	assert.True(t, leap[1].EndDate.Equal(date(2024, time.March, 29)))
	assertContiguous(t, leap)

	plain := svc.GeneratePeriods(1, plandomain.FrequencyMonthly, date(2023, time.January, 31), nil)
	require.NotEmpty(t, plain)
	assert.True(t, plain[0].EndDate.Equal(date(2023, time.February, 28)),
		"Jan 31 + 1 month should clamp to Feb 28, got %s", plain[0].EndDate)
}

func TestGeneratePeriodsOpenEndedHorizon(t *testing.T) {
	svc, _ := setupPeriodService(t)

	start := date(2024, time.March, 1)
	periods := svc.GeneratePeriods(1, plandomain.FrequencyMonthly, start, nil)

	require.Len(t, periods, 12)
	assertContiguous(t, periods)
	assert.True(t, periods[11].EndDate.Equal(date(2025, time.March, 1)))
}

func TestGeneratePeriodsQuarterly(t *testing.T) {
	svc, _ := setupPeriodService(t)

	start := date(2024, time.January, 1)
	end := date(2025, time.January, 1)
	periods := svc.GeneratePeriods(1, plandomain.FrequencyQuarterly, start, &end)

	require.Len(t, periods, 4)
	assertContiguous(t, periods)
	assert.True(t, periods[0].EndDate.Equal(date(2024, time.April, 1)))
	assert.True(t, periods[3].EndDate.Equal(end))
}

func TestGeneratePeriodsYearly(t *testing.T) {
	svc, _ := setupPeriodService(t)

	start := date(2024, time.February, 29)
	end := date(2027, time.March, 1)
	periods := svc.GeneratePeriods(1, plandomain.FrequencyYearly, start, &end)

	require.Len(t, periods, 4)
	assertContiguous(t, periods)
	// Feb 29 clamps to Feb 28 on non-leap years.
	assert.True(t, periods[0].EndDate.Equal(date(2025, time.February, 28)))
	assert.True(t, periods[3].EndDate.Equal(end))
}

func TestGeneratePeriodsClipsToEnd(t *testing.T) {
	svc, _ := setupPeriodService(t)

	start := date(2024, time.January, 1)
	end := date(2024, time.February, 15)
	periods := svc.GeneratePeriods(1, plandomain.FrequencyMonthly, start, &end)

	require.Len(t, periods, 2)
	assert.True(t, periods[1].StartDate.Equal(date(2024, time.February, 1)))
	assert.True(t, periods[1].EndDate.Equal(end))
}

func TestGeneratePeriodsEmptyWindow(t *testing.T) {
	svc, _ := setupPeriodService(t)

	start := date(2024, time.January, 1)
	periods := svc.GeneratePeriods(1, plandomain.FrequencyMonthly, start, &start)
	assert.Empty(t, periods)
}

func TestGeneratePeriodsUnknownFrequencyDefaultsMonthly(t *testing.T) {
	svc, _ := setupPeriodService(t)

	start := date(2024, time.January, 1)
	end := date(2024, time.March, 1)
	periods := svc.GeneratePeriods(1, plandomain.BillingFrequency("weekly"), start, &end)

	require.Len(t, periods, 2)
	assert.True(t, periods[0].EndDate.Equal(date(2024, time.February, 1)))
}

func TestFindForTimeBoundaryTies(t *testing.T) {
	svc, db := setupPeriodService(t)
	ctx := context.Background()

	start := date(2024, time.January, 1)
	end := date(2024, time.April, 1)
	periods := svc.GeneratePeriods(42, plandomain.FrequencyMonthly, start, &end)
	require.Len(t, periods, 3)
	require.NoError(t, svc.PersistPeriods(ctx, db, periods))

	// A joint instant belongs to the earlier period.
	joint := date(2024, time.February, 1)
	found, err := svc.FindForTime(ctx, 42, joint)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, periods[0].ID, found.ID)

	inside, err := svc.FindForTime(ctx, 42, date(2024, time.February, 14))
	require.NoError(t, err)
	require.NotNil(t, inside)
	assert.Equal(t, periods[1].ID, inside.ID)

	outside, err := svc.FindForTime(ctx, 42, date(2024, time.June, 1))
	require.NoError(t, err)
	assert.Nil(t, outside)

	otherSubscription, err := svc.FindForTime(ctx, 43, joint)
	require.NoError(t, err)
	assert.Nil(t, otherSubscription)
}

func TestBillingPeriodGetByID(t *testing.T) {
	svc, db := setupPeriodService(t)
	ctx := context.Background()

	start := date(2024, time.January, 1)
	end := date(2024, time.February, 1)
	periods := svc.GeneratePeriods(7, plandomain.FrequencyMonthly, start, &end)
	require.NoError(t, svc.PersistPeriods(ctx, db, periods))

	found, err := svc.GetByID(ctx, periods[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, periods[0].ID, found.ID)

	_, err = svc.GetByID(ctx, "not-a-snowflake")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = svc.GetByID(ctx, snowflake.ID(999999999).String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
