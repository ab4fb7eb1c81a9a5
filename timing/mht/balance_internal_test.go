package mht

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tfpsim/formats"
	"github.com/sarchlab/tfpsim/setup"
)

var _ = Describe("load balancers", func() {
	var t *Transform

	BeforeEach(func() {
		t = New(formats.New(setup.MustNew(setup.DefaultConfig())))
	})

	ids := func(stubs []*stub) []int {
		out := make([]int, len(stubs))
		for i, st := range stubs {
			out[i] = -1
			if st != nil {
				out[i] = int(st.id)
			}
		}
		return out
	}

	track := func(id uint64, n int) []*stub {
		out := make([]*stub, n)
		for i := range out {
			out[i] = &stub{id: id}
		}
		return out
	}

	Describe("static", func() {
		It("should drain the enabled input before moving on", func() {
			inputs := [][]*stub{track(1, 3), track(2, 2), nil, nil}

			accepted, lost := t.slb(inputs)

			Expect(ids(accepted)).To(Equal([]int{1, 1, 1, 2, 2}))
			Expect(lost).To(BeEmpty())
		})

		It("should enable the lowest non-empty input once the current one runs dry", func() {
			a := track(1, 2)
			inputs := [][]*stub{
				{a[0], nil, a[1]},
				track(2, 3),
				nil,
				nil,
			}

			accepted, _ := t.slb(inputs)

			Expect(ids(accepted)).To(Equal([]int{1, 2, 2, 2, 1}))
		})
	})

	Describe("dynamic", func() {
		It("should move new tracks to the less loaded stream with hysteresis", func() {
			var first []*stub
			first = append(first, track(1, 3)...)
			first = append(first, track(3, 2)...)
			first = append(first, track(4, 2)...)
			first = append(first, track(5, 1)...)
			streams := [][]*stub{first, nil}

			t.dlb(streams)

			Expect(ids(streams[0])).To(Equal([]int{1, 1, 1, -1, -1, -1, -1, 5}))
			Expect(ids(streams[1])).To(Equal([]int{-1, -1, -1, 3, 3, 4, 4, -1}))
		})

		It("should not swap while both streams are busy", func() {
			streams := [][]*stub{
				append(track(1, 3), track(3, 2)...),
				append(track(2, 1), track(4, 4)...),
			}

			t.dlb(streams)

			Expect(ids(streams[0])).To(Equal([]int{1, 1, 1, 3, 3}))
			Expect(ids(streams[1])).To(Equal([]int{2, 4, 4, 4, 4}))
		})
	})
})
