package upload_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/HKUDS/graffitibot-go/pkg/transport/transporttest"
	"github.com/HKUDS/graffitibot-go/pkg/upload"
	"github.com/HKUDS/graffitibot-go/pkg/vkapi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Flow", func() {
	var (
		ctx  context.Context
		rec  *transporttest.Recorder
		flow *upload.Flow
		path string
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = transporttest.New()
		client, err := vkapi.NewClient(vkapi.ClientConfig{
			Credentials: vkapi.Credentials{Token: "tok"},
			Transport:   rec,
		})
		Expect(err).NotTo(HaveOccurred())
		flow = upload.NewFlow(client, rec, nil)

		path = filepath.Join(GinkgoT().TempDir(), "img.jpg")
		Expect(os.WriteFile(path, []byte("jpeg"), 0o644)).To(Succeed())
	})

	It("runs the three calls and formats the reference", func() {
		rec.Push(
			transporttest.JSON(`{"response":{"upload_url":"https://pu.vk.com/c1","album_id":-3,"user_id":0,"group_id":5}}`),
			transporttest.JSON(`{"server":99,"photo":"[{\"photo\":\"x\"}]","hash":"abc"}`),
			transporttest.JSON(`{"response":[{"owner_id":7,"id":42}]}`),
		)

		ref, err := flow.UploadAndRegister(ctx, path, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(ref.String()).To(Equal("photo7_42"))

		calls := rec.Calls()
		Expect(calls).To(HaveLen(3))
		Expect(calls[0].URL).To(ContainSubstring("photos.getMessagesUploadServer?peer_id=7&"))
		Expect(calls[1]).To(Equal(transporttest.Call{Op: "POST", URL: "https://pu.vk.com/c1", FieldName: "photo", FilePath: path}))
		Expect(calls[2].URL).To(ContainSubstring("photos.saveMessagesPhoto?photo="))
		Expect(calls[2].URL).To(ContainSubstring("&server=99&hash=abc&"))
	})

	It("fails before any network call when the file is missing", func() {
		_, err := flow.UploadAndRegister(ctx, filepath.Join(GinkgoT().TempDir(), "nope.jpg"), 7)
		Expect(errors.Is(err, upload.ErrFileNotFound)).To(BeTrue())
		Expect(rec.Calls()).To(BeEmpty())
	})

	It("fails before any network call when the path is a directory", func() {
		_, err := flow.UploadAndRegister(ctx, GinkgoT().TempDir(), 7)
		Expect(errors.Is(err, upload.ErrFileAccess)).To(BeTrue())
		Expect(rec.Calls()).To(BeEmpty())
	})

	It("stops when the upload server is refused", func() {
		rec.Push(transporttest.JSON(`{"error":{"error_code":15,"error_msg":"Access denied"}}`))
		_, err := flow.UploadAndRegister(ctx, path, 7)
		Expect(vkapi.IsAPIError(err, vkapi.ErrCodeAccessDenied)).To(BeTrue())
		Expect(rec.Calls()).To(HaveLen(1))
	})

	It("propagates transfer failures", func() {
		rec.Push(
			transporttest.JSON(`{"response":{"upload_url":"https://pu.vk.com/c1"}}`),
			transporttest.Fail(errors.New("connection reset")),
		)
		_, err := flow.UploadAndRegister(ctx, path, 7)
		Expect(err).To(MatchError(ContainSubstring("connection reset")))
		Expect(rec.Calls()).To(HaveLen(2))
	})

	It("rejects an upload reply without a photo", func() {
		rec.Push(
			transporttest.JSON(`{"response":{"upload_url":"https://pu.vk.com/c1"}}`),
			transporttest.JSON(`{"server":99,"photo":"[]","hash":"abc"}`),
		)
		_, err := flow.UploadAndRegister(ctx, path, 7)
		var decodeErr *vkapi.DecodeError
		Expect(errors.As(err, &decodeErr)).To(BeTrue())
		Expect(rec.Calls()).To(HaveLen(2))
	})

	It("propagates a rejected save", func() {
		rec.Push(
			transporttest.JSON(`{"response":{"upload_url":"https://pu.vk.com/c1"}}`),
			transporttest.JSON(`{"server":99,"photo":"p","hash":"abc"}`),
			transporttest.JSON(`{"error":{"error_code":100,"error_msg":"hash invalid"}}`),
		)
		_, err := flow.UploadAndRegister(ctx, path, 7)
		Expect(vkapi.IsAPIError(err, vkapi.ErrCodeInvalidParam)).To(BeTrue())
	})

	DescribeTable("rejects unusable save results",
		func(body string) {
			rec.Push(
				transporttest.JSON(`{"response":{"upload_url":"https://pu.vk.com/c1"}}`),
				transporttest.JSON(`{"server":99,"photo":"p","hash":"abc"}`),
				transporttest.JSON(body),
			)
			ref, err := flow.UploadAndRegister(ctx, path, 7)
			var decodeErr *vkapi.DecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(ref.IsZero()).To(BeTrue())
		},
		Entry("empty list", `{"response":[]}`),
		Entry("missing id", `{"response":[{"owner_id":7}]}`),
		Entry("not a list", `{"response":{"owner_id":7,"id":42}}`),
	)
})
