package fleet_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/twinfleet/internal/adapters/observability"
	"github.com/ghalamif/twinfleet/internal/adapters/store"
	"github.com/ghalamif/twinfleet/internal/app/advisor"
	"github.com/ghalamif/twinfleet/internal/app/config"
	"github.com/ghalamif/twinfleet/internal/app/fleet"
	"github.com/ghalamif/twinfleet/internal/domain"
	"github.com/ghalamif/twinfleet/internal/twin"
)

func unitConfig(id string) config.EquipmentConfig {
	return config.EquipmentConfig{
		ID:             id,
		Name:           "Press " + id,
		MaxCapacity:    250,
		Efficiency:     ptr(0.95),
		Temperature:    40,
		OperatingRange: twin.TempRange{Low: 0, High: 100},
		FailureTypes:   []string{"hydraulic_leak"},
	}
}

var _ = Describe("Fleet", func() {
	var (
		ctx context.Context
		obs *observability.PromObs
	)

	BeforeEach(func() {
		ctx = context.Background()
		obs = observability.NewPromObs(prometheus.NewRegistry(), nil)
	})

	Context("with two units of two sensors each", func() {
		It("persists one snapshot per unit and one reading per sensor every iteration", func() {
			units, err := fleet.BuildUnits(
				[]config.EquipmentConfig{unitConfig("EQ-A"), unitConfig("EQ-B")},
				[]config.SensorConfig{
					{ID: "A-T", EquipmentID: "EQ-A", Min: 0, Max: 100},
					{ID: "A-P", EquipmentID: "EQ-A", Min: 0, Max: 10, Mode: "drift", DriftRate: 0.3},
					{ID: "B-T", EquipmentID: "EQ-B", Min: 0, Max: 100, Mode: "stuck"},
					{ID: "B-V", EquipmentID: "EQ-B", Min: 0, Max: 5},
				}, 11, nil)
			Expect(err).NotTo(HaveOccurred())

			adv, err := advisor.New([]advisor.Point{{Time: 0, Value: 100}, {Time: 10, Value: 100}})
			Expect(err).NotTo(HaveOccurred())

			mem := store.NewMemoryStore()
			c, err := fleet.New(units, mem, adv, nil, obs, fleet.Options{Workers: 2, RiskThreshold: 50})
			Expect(err).NotTo(HaveOccurred())

			Expect(c.RunIterations(ctx, 5)).To(Succeed())

			readings, snapshots := mem.Counts()
			Expect(readings).To(Equal(20))
			Expect(snapshots).To(Equal(10))

			stuck, err := mem.QueryReadings(ctx, "B-T", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(stuck).To(HaveLen(5))
			for _, r := range stuck {
				Expect(r.Value).To(Equal(stuck[0].Value))
			}
		})

		It("survives a restart when backed by the journal", func() {
			dir := GinkgoT().TempDir()
			units, err := fleet.BuildUnits([]config.EquipmentConfig{unitConfig("EQ-A")},
				[]config.SensorConfig{{ID: "A-T", EquipmentID: "EQ-A", Min: 0, Max: 100}}, 5, nil)
			Expect(err).NotTo(HaveOccurred())

			j, err := store.OpenJournalStore(dir, false)
			Expect(err).NotTo(HaveOccurred())
			adv, _ := advisor.New([]advisor.Point{{Time: 0, Value: 100}, {Time: 1, Value: 100}})
			c, err := fleet.New(units, j, adv, nil, obs, fleet.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.RunIterations(ctx, 3)).To(Succeed())
			Expect(j.Close()).To(Succeed())

			reopened, err := store.OpenJournalStore(dir, false)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(reopened.Close)

			snaps, err := reopened.QuerySnapshots(ctx, "EQ-A", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(snaps).To(HaveLen(3))
		})
	})

	Context("when the advisor extrapolates a falling trend", func() {
		It("signals risk far beyond the seed range", func() {
			adv, err := advisor.New([]advisor.Point{{Time: 1, Value: 95}, {Time: 2, Value: 92}, {Time: 3, Value: 90}})
			Expect(err).NotTo(HaveOccurred())
			Expect(adv.CheckRisk(1000, 0.1)).To(BeTrue())
		})

		It("restores units once simulated time crosses the threshold", func() {
			adv, err := advisor.New([]advisor.Point{{Time: 0, Value: 100}, {Time: 10, Value: 90}})
			Expect(err).NotTo(HaveOccurred())

			ec := unitConfig("EQ-A")
			ec.FailureRate = 1
			units, err := fleet.BuildUnits([]config.EquipmentConfig{ec}, nil, 3, nil)
			Expect(err).NotTo(HaveOccurred())

			// predicted health drops below 95 after five simulated hours
			c, err := fleet.New(units, store.NewMemoryStore(), adv, nil, obs, fleet.Options{RiskThreshold: 95, HoursPerTick: 1})
			Expect(err).NotTo(HaveOccurred())

			Expect(c.RunIterations(ctx, 5)).To(Succeed())
			Expect(units[0].Equipment.Status()).To(Equal(domain.StatusFailed))

			Expect(c.Step(ctx)).To(Succeed())
			Expect(units[0].Equipment.Status()).To(Equal(domain.StatusOperational))
			Expect(units[0].Equipment.Efficiency()).To(Equal(1.0))
		})
	})

	Context("with a unit outside its operating range", func() {
		It("fails on the first tick and stays failed", func() {
			ec := unitConfig("EQ-HOT")
			ec.Temperature = 150
			units, err := fleet.BuildUnits([]config.EquipmentConfig{ec}, nil, 9, nil)
			Expect(err).NotTo(HaveOccurred())

			adv, _ := advisor.New([]advisor.Point{{Time: 0, Value: 100}, {Time: 1, Value: 100}})
			c, err := fleet.New(units, store.NewMemoryStore(), adv, nil, obs, fleet.Options{})
			Expect(err).NotTo(HaveOccurred())

			Expect(c.RunIterations(ctx, 4)).To(Succeed())
			sum := units[0].Equipment.PerformanceSummary()
			Expect(sum.Status).To(Equal(domain.StatusFailed))
			Expect(sum.FailureCount).To(Equal(1))
			Expect(sum.DowntimeTicks).To(Equal(3))
			Expect(sum.UptimePercentage).To(BeZero())
		})
	})

	It("stops promptly when cancelled during the sleep", func() {
		units, err := fleet.BuildUnits([]config.EquipmentConfig{unitConfig("EQ-A")}, nil, 1, nil)
		Expect(err).NotTo(HaveOccurred())
		adv, _ := advisor.New([]advisor.Point{{Time: 0, Value: 100}, {Time: 1, Value: 100}})
		c, err := fleet.New(units, store.NewMemoryStore(), adv, nil, obs, fleet.Options{TickInterval: time.Hour})
		Expect(err).NotTo(HaveOccurred())

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- c.Run(runCtx) }()

		Eventually(c.Iteration).Should(Equal(1))
		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})

func ptr(v float64) *float64 { return &v }
