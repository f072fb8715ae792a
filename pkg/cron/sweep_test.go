package cron_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/HKUDS/graffitibot-go/pkg/cron"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SweepCache", func() {
	var (
		dir string
		now time.Time
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		now = time.Now()
	})

	touch := func(name string, age time.Duration) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte("x"), 0o600)).To(Succeed())
		mtime := now.Add(-age)
		Expect(os.Chtimes(path, mtime, mtime)).To(Succeed())
		return path
	}

	It("removes only files older than maxAge", func() {
		stale := touch("stale.jpg", 2*time.Hour)
		fresh := touch("fresh.jpg", time.Minute)
		Expect(os.Mkdir(filepath.Join(dir, "sub"), 0o755)).To(Succeed())

		removed, err := cron.SweepCache(dir, time.Hour, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(Equal(1))
		Expect(stale).NotTo(BeAnExistingFile())
		Expect(fresh).To(BeAnExistingFile())
		Expect(filepath.Join(dir, "sub")).To(BeADirectory())
	})

	It("treats a missing directory as empty", func() {
		removed, err := cron.SweepCache(filepath.Join(dir, "nope"), time.Hour, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(BeZero())
	})

	It("is exposed as a job", func() {
		stale := touch("stale.jpg", 2*time.Hour)
		Expect(cron.SweepJob(dir, time.Hour, nil)()).To(Succeed())
		Expect(stale).NotTo(BeAnExistingFile())
	})
})
