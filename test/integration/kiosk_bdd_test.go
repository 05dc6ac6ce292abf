//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/kioskctl/internal/daemon"
	"github.com/eliteGoblin/focusd/kioskctl/internal/domain"
	"github.com/eliteGoblin/focusd/kioskctl/internal/infra"
	"github.com/eliteGoblin/focusd/kioskctl/internal/policy"
	"github.com/eliteGoblin/focusd/kioskctl/internal/usecase"
	"github.com/eliteGoblin/focusd/kioskctl/test/fixtures"
)

func event(kind domain.HostEventKind) domain.HostEvent {
	return domain.HostEvent{ID: uuid.New().String(), Kind: kind, At: time.Now()}
}

var _ = Describe("Kiosk Controller", func() {
	var (
		tmpDir     string
		inbox      string
		device     *fixtures.FakeDevice
		journal    *infra.EncryptedJournal
		controller *daemon.Controller
		events     chan domain.HostEvent
		cancel     context.CancelFunc
		done       chan error
	)

	submit := func(channel, method string, args map[string]string) usecase.Reply {
		reply, err := controller.Submit(context.Background(), usecase.Command{
			Channel: channel,
			Method:  method,
			Args:    args,
		})
		Expect(err).NotTo(HaveOccurred())
		return reply
	}

	lockState := func() interface{} {
		return submit(usecase.ChannelKiosk, "currentLockState", nil).Result
	}

	start := func() {
		var err error
		journal, err = infra.OpenJournal(filepath.Join(tmpDir, "data"))
		Expect(err).NotTo(HaveOccurred())

		controller = daemon.NewController(
			daemon.Config{InboxDir: inbox},
			device,
			infra.NewFileSystemManager(),
			policy.NewRegistry(fixtures.KioskIdentity).Sequence(),
			journal,
			zap.NewNop(),
		)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		events = make(chan domain.HostEvent)
		done = make(chan error, 1)
		go func() { done <- controller.Run(ctx, events) }()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "kioskctl-integration-*")
		Expect(err).NotTo(HaveOccurred())
		inbox = filepath.Join(tmpDir, "inbox")
		Expect(os.MkdirAll(inbox, 0755)).To(Succeed())
		device = fixtures.NewFakeDevice()
	})

	AfterEach(func() {
		if cancel != nil {
			cancel()
			Eventually(done).Should(Receive())
			cancel = nil
		}
		if journal != nil {
			Expect(journal.Close()).To(Succeed())
			journal = nil
		}
		os.RemoveAll(tmpDir)
	})

	Describe("Enrollment", func() {
		Context("when the kiosk app becomes device owner", func() {
			It("should apply the lockdown, take over HOME and end up locked", func() {
				start()
				events <- event(domain.EventEnrolled)

				Expect(lockState()).To(Equal(string(domain.Locked)))

				snapshot := device.Snapshot()
				Expect(snapshot.LockTaskPackages).To(Equal([]string{"com.example.kiosk"}))
				Expect(snapshot.KeyguardDisabled).To(BeTrue())
				Expect(snapshot.StatusBarDisabled).To(BeTrue())
				Expect(snapshot.Restrictions).To(ContainElements("no_safe_boot", "no_factory_reset", "no_add_user"))
				Expect(snapshot.HomeActivities).To(Equal([]string{"com.example.kiosk/.MainActivity"}))
				Expect(snapshot.UninstallBlocked).To(Equal([]string{"com.example.kiosk"}))
				Expect(device.Launches).To(Equal(1))
			})

			It("should ignore a re-delivered event", func() {
				start()
				enrolled := event(domain.EventEnrolled)
				events <- enrolled
				events <- enrolled

				Expect(lockState()).To(Equal(string(domain.Locked)))
				Expect(device.CallCount("SetStatusBarDisabled")).To(Equal(1))
				Expect(device.Launches).To(Equal(1))
			})

			It("should leave state unchanged on a second distinct enrollment", func() {
				start()
				events <- event(domain.EventEnrolled)
				Expect(lockState()).To(Equal(string(domain.Locked)))
				before := device.Snapshot()

				events <- event(domain.EventAdminEnabled)
				Expect(lockState()).To(Equal(string(domain.Locked)))

				Expect(device.Snapshot()).To(Equal(before))
				Expect(device.Snapshot().HomeActivities).To(HaveLen(1))
			})
		})

		Context("when the kiosk app has no authority", func() {
			It("should change nothing", func() {
				device = fixtures.NewUnmanagedDevice()
				start()
				events <- event(domain.EventEnrolled)

				Expect(lockState()).To(Equal(string(domain.Unlocked)))
				Expect(device.CallCount("SetKeyguardDisabled")).To(BeZero())
				Expect(device.Launches).To(BeZero())
				Expect(submit(usecase.ChannelKiosk, "enterLockMode", nil).Result).To(BeFalse())
			})
		})
	})

	Describe("Lock-mode supervision", func() {
		Context("when something unlocks the device", func() {
			It("should re-lock on the next resume", func() {
				start()
				Expect(submit(usecase.ChannelKiosk, "startLockTask", nil).Result).To(BeTrue())

				device.ForceUnlock()
				events <- event(domain.EventResumed)

				Expect(lockState()).To(Equal(string(domain.Locked)))
			})
		})

		Context("when the operator exits lock mode", func() {
			It("should report unlocked until the kiosk resumes", func() {
				start()
				Expect(submit(usecase.ChannelKiosk, "startLockTask", nil).Result).To(BeTrue())
				Expect(submit(usecase.ChannelKiosk, "stopLockTask", nil).Result).To(BeTrue())
				Expect(lockState()).To(Equal(string(domain.Unlocked)))

				events <- event(domain.EventLaunched)
				Expect(lockState()).To(Equal(string(domain.Locked)))
			})
		})

		Context("when an unknown command arrives", func() {
			It("should answer not implemented", func() {
				start()
				_, err := controller.Submit(context.Background(), usecase.Command{
					Channel: usecase.ChannelKiosk,
					Method:  "wipeData",
				})
				Expect(err).To(MatchError(usecase.ErrNotImplemented))
			})
		})
	})

	Describe("Package installs", func() {
		var pkg string

		BeforeEach(func() {
			pkg = filepath.Join(tmpDir, "kiosk-2.1.apk")
			Expect(os.WriteFile(pkg, []byte("PK"), 0644)).To(Succeed())
		})

		It("should dispatch a content URI with a read grant", func() {
			start()
			reply := submit(usecase.ChannelAppUpdate, "installPackage", map[string]string{"path": pkg})

			Expect(reply.Result).To(Equal(string(domain.InstallInstalled)))
			Expect(device.Dispatched).To(HaveLen(1))
			Expect(device.Dispatched[0].URI).To(HavePrefix("content://"))
			Expect(device.Dispatched[0].GrantRead).To(BeTrue())
			Expect(device.Dispatched[0].MimeType).To(Equal(usecase.PackageMimeType))
		})

		It("should use a file URI on old platforms", func() {
			device.SDK = 22
			start()
			reply := submit(usecase.ChannelAppUpdate, "installPackage", map[string]string{"path": pkg})

			Expect(reply.Result).To(Equal(string(domain.InstallInstalled)))
			Expect(device.Dispatched[0].URI).To(Equal("file://" + pkg))
		})

		It("should open the permission flow when installs are not allowed", func() {
			device.CanRequestInstalls = false
			start()
			reply := submit(usecase.ChannelAppUpdate, "installPackage", map[string]string{"path": pkg})

			Expect(reply.Result).To(Equal(string(domain.InstallPermissionRequired)))
			Expect(device.PermissionFlows).To(Equal([]domain.PermissionFlow{domain.FlowPerSourceInstall}))
			Expect(device.Dispatched).To(BeEmpty())
		})

		It("should report a missing file without touching the device", func() {
			start()
			reply := submit(usecase.ChannelAppUpdate, "installPackage",
				map[string]string{"path": filepath.Join(tmpDir, "missing.apk")})

			Expect(reply.Result).To(Equal(string(domain.InstallFileNotFound)))
			Expect(device.TotalCalls()).To(BeZero())
		})

		It("should install packages dropped into the inbox", func() {
			start()
			dropped := filepath.Join(inbox, "kiosk-2.2.apk")
			Expect(os.WriteFile(dropped, []byte("PK"), 0644)).To(Succeed())
			controller.EnqueueInstall(dropped)

			Eventually(func() bool {
				_, err := os.Stat(filepath.Join(inbox, "processed", "kiosk-2.2.apk"))
				return err == nil
			}, 2*time.Second, 20*time.Millisecond).Should(BeTrue())
			Expect(device.DispatchedCount()).To(Equal(1))
		})
	})

	Describe("Journal", func() {
		It("should record controller activity in the encrypted journal", func() {
			start()
			events <- event(domain.EventEnrolled)
			Expect(lockState()).To(Equal(string(domain.Locked)))

			entries, err := journal.Recent(0)
			Expect(err).NotTo(HaveOccurred())

			var kinds []string
			for _, e := range entries {
				kinds = append(kinds, e.Kind+":"+e.Subject)
			}
			joined := strings.Join(kinds, ",")
			Expect(joined).To(ContainSubstring("event:enrolled"))
			Expect(joined).To(ContainSubstring("lockdown:bootstrap"))
			Expect(joined).To(ContainSubstring("command:kiosk.currentLockState"))
		})
	})
})
