//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/abduljabar5/khushood/internal/domain"
	"github.com/abduljabar5/khushood/internal/infra"
	"github.com/abduljabar5/khushood/internal/schedule"
	"github.com/abduljabar5/khushood/internal/usecase"
)

var _ = Describe("Blocking Lifecycle", func() {
	var (
		tmpDir    string
		store     *infra.FileStore
		persister *infra.PersistenceAdapter
		authority *infra.StoreAuthority
		rolling   *schedule.RollingStore
		machine   *usecase.Machine
		guard     *usecase.Guard
		unlocker  *usecase.UnlockController
		logger    *zap.Logger

		// Fajr at 05:30, window [05:20, 05:50)
		fajrTime    time.Time
		windowStart time.Time
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		logger = zap.NewNop()

		var err error
		store, err = infra.NewFileStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		persister = infra.NewPersistenceAdapter(store)
		authority = infra.NewStoreAuthority(store, 20)
		rolling = schedule.NewRollingStore(schedule.DefaultRollingConfig(), authority, persister, logger)
		machine = usecase.NewMachine(usecase.DefaultMachineConfig(), rolling, persister, logger)
		guard = usecase.NewGuard(infra.NewStoreSpeech(store), persister, logger)
		unlocker = usecase.NewUnlockController(usecase.DefaultUnlockConfig(), machine, guard, logger)

		fajrTime = time.Date(2026, 8, 24, 5, 30, 0, 0, time.UTC)
		windowStart = fajrTime.Add(-10 * time.Minute)

		events := []domain.PrayerEvent{
			{Name: domain.Fajr, Time: fajrTime},
			{Name: domain.Dhuhr, Time: fajrTime.Add(7 * time.Hour)},
		}
		set := schedule.Build(events, schedule.DefaultBuildConfig())
		Expect(rolling.Replace(context.Background(), set, windowStart.Add(-time.Hour))).To(Succeed())
	})

	Describe("schedule registration", func() {
		It("registers the built windows with the enforcement authority", func() {
			registered, err := authority.Registered()
			Expect(err).NotTo(HaveOccurred())
			Expect(registered).To(HaveLen(2))
			Expect(registered[0].Prayer).To(Equal(domain.Fajr))
		})

		It("persists the schedule for the foreground app", func() {
			loaded, version, err := persister.LoadSchedule()
			Expect(err).NotTo(HaveOccurred())
			Expect(version).To(BeNumerically(">=", 1))
			Expect(loaded).To(HaveLen(2))
		})
	})

	Describe("entering a blocking window", func() {
		It("stays Scheduled until the authority confirms enforcement", func() {
			state := machine.Reconcile(windowStart.Add(time.Minute))
			Expect(state.Phase).To(Equal(domain.PhaseScheduled))
			Expect(state.IsCurrentlyBlocking).To(BeFalse())
		})

		It("moves to Blocking once confirmation arrives inside the window", func() {
			now := windowStart.Add(time.Minute)
			Expect(authority.WriteConfirmation(true, now)).To(Succeed())

			blocked, _, err := authority.ReadConfirmation()
			Expect(err).NotTo(HaveOccurred())
			Expect(blocked).To(BeTrue())

			state := machine.SetAuthorityConfirmed(blocked, now, now)
			Expect(state.Phase).To(Equal(domain.PhaseBlocking))
			Expect(state.AppsActuallyBlocked).To(BeTrue())
		})

		It("ignores a confirmation arriving with no current window", func() {
			beforeWindow := windowStart.Add(-30 * time.Minute)
			state := machine.SetAuthorityConfirmed(true, beforeWindow, beforeWindow)
			Expect(state.Phase).NotTo(Equal(domain.PhaseBlocking))
		})
	})

	Describe("early unlock", func() {
		confirmBlocking := func(now time.Time) {
			state := machine.SetAuthorityConfirmed(true, now, now)
			Expect(state.Phase).To(Equal(domain.PhaseBlocking))
		}

		It("rejects an unlock before the offset has elapsed", func() {
			now := windowStart.Add(time.Minute)
			confirmBlocking(now)

			_, err := unlocker.EarlyUnlock(now, "")
			Expect(err).To(MatchError(domain.ErrUnlockTooEarly))
		})

		It("grants exactly one unlock per window after the offset", func() {
			now := windowStart.Add(6 * time.Minute)
			confirmBlocking(now)

			rec, err := unlocker.EarlyUnlock(now, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Window.Prayer).To(Equal(domain.Fajr))

			state := machine.State()
			Expect(state.Phase).To(Equal(domain.PhaseEarlyUnlocked))

			_, err = unlocker.EarlyUnlock(now.Add(time.Minute), "")
			Expect(err).To(MatchError(domain.ErrEarlyUnlockUsed))
		})

		It("keeps the at-most-once guarantee across a process restart", func() {
			now := windowStart.Add(6 * time.Minute)
			confirmBlocking(now)

			_, err := unlocker.EarlyUnlock(now, "")
			Expect(err).NotTo(HaveOccurred())

			// Simulate restart: fresh machine over the same persister
			restarted := usecase.NewMachine(usecase.DefaultMachineConfig(), rolling, persister, logger)
			restartedUnlocker := usecase.NewUnlockController(usecase.DefaultUnlockConfig(), restarted, guard, logger)

			restarted.SetAuthorityConfirmed(true, now.Add(time.Minute), now.Add(time.Minute))
			_, err = restartedUnlocker.EarlyUnlock(now.Add(time.Minute), "")
			Expect(err).To(MatchError(domain.ErrEarlyUnlockUsed))
		})

		Context("with strict mode enabled", func() {
			BeforeEach(func() {
				Expect(guard.SetStrictMode(true)).To(Succeed())
			})

			It("rejects an unlock without the spoken phrase", func() {
				now := windowStart.Add(6 * time.Minute)
				confirmBlocking(now)

				_, err := unlocker.EarlyUnlock(now, "something else entirely")
				Expect(err).To(MatchError(domain.ErrStrictModeLocked))
			})

			It("accepts a messy transcript containing the phrase", func() {
				now := windowStart.Add(6 * time.Minute)
				confirmBlocking(now)

				transcript := "um  I CHOOSE to end this   block early please"
				_, err := unlocker.EarlyUnlock(now, transcript)
				Expect(err).NotTo(HaveOccurred())
			})

			It("cannot be enabled while speech permission is denied", func() {
				Expect(store.Set(infra.KeySpeechPermission, []byte("denied"))).To(Succeed())

				fresh := usecase.NewGuard(infra.NewStoreSpeech(store), nil, logger)
				Expect(fresh.SetStrictMode(true)).To(MatchError(domain.ErrSpeechPermissionDenied))
			})
		})
	})

	Describe("window expiry", func() {
		It("leaves the window without an unlock record at its natural end", func() {
			inWindow := windowStart.Add(time.Minute)
			machine.SetAuthorityConfirmed(true, inWindow, inWindow)

			afterEnd := windowStart.Add(31 * time.Minute)
			state := machine.Reconcile(afterEnd)

			Expect(state.Phase).To(Equal(domain.PhaseIdle)) // Dhuhr is beyond the imminent horizon
			Expect(state.IsCurrentlyBlocking).To(BeFalse())
			Expect(state.IsEarlyUnlockedActive).To(BeFalse())
		})

		It("rolls the registration forward as windows expire", func() {
			afterFajr := windowStart.Add(31 * time.Minute)
			Expect(rolling.Refresh(context.Background(), afterFajr)).To(Succeed())

			registered, err := authority.Registered()
			Expect(err).NotTo(HaveOccurred())
			Expect(registered).To(HaveLen(1))
			Expect(registered[0].Prayer).To(Equal(domain.Dhuhr))
		})
	})

	Describe("content filter commitment", func() {
		It("enables instantly and disables only after maturation", func() {
			now := windowStart
			guard.EnableContentFilter()
			Expect(guard.ContentFilter().Enabled).To(BeTrue())

			effective, err := guard.RequestContentFilterDisable(now)
			Expect(err).NotTo(HaveOccurred())
			Expect(effective).To(Equal(now.Add(48 * time.Hour)))

			// Not yet matured
			Expect(guard.CheckContentFilter(now.Add(47 * time.Hour))).To(BeFalse())
			Expect(guard.ContentFilter().Enabled).To(BeTrue())

			// Matured
			Expect(guard.CheckContentFilter(now.Add(49 * time.Hour))).To(BeTrue())
			Expect(guard.ContentFilter().Enabled).To(BeFalse())
		})

		It("survives a restart with the pending request intact", func() {
			now := windowStart
			guard.EnableContentFilter()
			_, err := guard.RequestContentFilterDisable(now)
			Expect(err).NotTo(HaveOccurred())

			restarted := usecase.NewGuard(infra.NewStoreSpeech(store), persister, logger)
			filter := restarted.ContentFilter()
			Expect(filter.Enabled).To(BeTrue())
			Expect(filter.DisablePending()).To(BeTrue())
		})
	})
})

var _ = Describe("Encrypted Commitment Store", func() {
	It("runs the commitment guard over the encrypted backend", func() {
		tmpDir := GinkgoT().TempDir()
		logger := zap.NewNop()

		key, err := infra.NewFileKeyProvider(tmpDir).EnsureKey()
		Expect(err).NotTo(HaveOccurred())

		encrypted, err := infra.NewEncryptedStore(tmpDir, key)
		Expect(err).NotTo(HaveOccurred())
		defer encrypted.Close()

		secret := infra.NewPersistenceAdapter(encrypted)

		plain, err := infra.NewFileStore(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		guard := usecase.NewGuard(infra.NewStoreSpeech(plain), secret, logger)
		Expect(guard.SetStrictMode(true)).To(Succeed())

		// A fresh guard over the same encrypted store sees the setting
		reloaded := usecase.NewGuard(infra.NewStoreSpeech(plain), secret, logger)
		Expect(reloaded.StrictMode().Enabled).To(BeTrue())
	})
})
