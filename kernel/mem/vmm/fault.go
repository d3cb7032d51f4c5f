package vmm

import (
	"github.com/corigan01/quantumos/kernel/mem/addr"
	"github.com/corigan01/quantumos/kernel/mem/page"
)

// FaultInfo is the hardware fault information handed to the page-fault
// handler: the raw CR2 value plus the decoded access kind that caused the
// fault.
type FaultInfo struct {
	Addr        uint64
	Write       bool
	User        bool
	Instruction bool
}

// FaultVerdict is the page-fault handler's decision.
type FaultVerdict int

const (
	// Handled means the fault was resolved by installing a page; the
	// faulting instruction should be retried.
	Handled FaultVerdict = iota

	// VerdictNoAccess means the address is within a known VmObject but
	// the requested access exceeds its permissions; NoAccess carries the
	// detail.
	VerdictNoAccess

	// VerdictNotAttached means the address is not within any known
	// VmObject; the caller must panic (kernel bug).4.
	VerdictNotAttached
)

// NoAccess describes a permission-violation fault.
type NoAccess struct {
	PagePerm    Permission
	RequestPerm Permission
	Addr        uint64
}

// requestedPermission translates the hardware fault bits into the
// Permission the faulting access required.
func requestedPermission(info FaultInfo) Permission {
	p := PermRead
	if info.Write {
		p |= PermWrite
	}
	if info.Instruction {
		p |= PermExec
	}
	if info.User {
		p |= PermUser
	}
	return p
}

// HandleFault implements the design page-fault decision table: it
// looks up the VmObject containing info.Addr among proc's objects and
// either installs a page (Handled), reports a permission violation
// (VerdictNoAccess with a populated NoAccess), or reports an address with
// no owning object at all (VerdictNotAttached — the caller must panic,
// this is a kernel bug not a user error).
func (p *VmProcess) HandleFault(info FaultInfo, alloc FrameAllocatorFn) (FaultVerdict, *NoAccess) {
	faultPage := info.Addr / addr.SizeOf[addr.Aligned4K]()

	for _, obj := range p.Objects {
		if !obj.Contains(faultPage) {
			continue
		}

		want := requestedPermission(info)
		// READ is implicit in every mapping; only check the bits the
		// access actually elevates beyond READ.
		need := want &^ PermRead
		if need&^obj.Perm != 0 {
			return VerdictNoAccess, &NoAccess{PagePerm: obj.Perm, RequestPerm: want, Addr: info.Addr}
		}

		frameAddr, err := alloc()
		if err != nil {
			return VerdictNoAccess, &NoAccess{PagePerm: obj.Perm, RequestPerm: want, Addr: info.Addr}
		}
		frame := page.NewPhysPage[addr.Aligned4K](frameAddr / addr.SizeOf[addr.Aligned4K]())

		if obj.Backing != nil {
			dst := backingScratch[:]
			offset := faultPage - obj.Region.StartPage
			if ferr := obj.Backing.Fill(offset, dst); ferr == nil {
				copyIntoFrame(frameAddr, dst)
			}
		}

		vpage := page.NewVirtPage[addr.Aligned4K](faultPage)
		if mapErr := p.Table.Map4KPage(vpage, frame, obj.Perm, alloc); mapErr != nil {
			return VerdictNoAccess, &NoAccess{PagePerm: obj.Perm, RequestPerm: want, Addr: info.Addr}
		}
		return Handled, nil
	}

	return VerdictNotAttached, nil
}
