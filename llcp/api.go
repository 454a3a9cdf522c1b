package llcp

import (
	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/pdu"
)

// Initiators return an HCI status: pdu.ErrSuccess once the procedure is
// queued, pdu.ErrCmdDisallowed when the role, the link state, the feature
// set or the context pool does not allow it, pdu.ErrInvalidParam for bad
// arguments. They never block; the procedure progresses from Run.

func (c *Conn) enqueueLocal(proc Proc, setup func(ctx *ProcCtx)) uint8 {
	if c.local.state == lrDisconnected {
		return pdu.ErrCmdDisallowed
	}
	if !c.e.procEnabled(proc, false) {
		c.debug("local %s disabled by configuration", proc)
		return pdu.ErrCmdDisallowed
	}
	ctx := c.e.createLocal(proc)
	if ctx == nil {
		logger.Warn(c.prefix, "no local context for %s", proc)
		return pdu.ErrCmdDisallowed
	}
	if setup != nil {
		setup(ctx)
	}
	c.lrEnqueue(ctx)
	return pdu.ErrSuccess
}

// VersionExchange exchanges LL_VERSION_IND. Once done, later calls report the
// cached peer version without any air traffic.
func (c *Conn) VersionExchange() uint8 {
	return c.enqueueLocal(ProcVersionExchange, nil)
}

// FeatureExchange asks for the peer's feature set. A peripheral needs the
// peripheral-initiated feature exchange feature.
func (c *Conn) FeatureExchange() uint8 {
	if c.role == RolePeripheral && c.e.features&FeatPerInitFeatXchg == 0 {
		return pdu.ErrCmdDisallowed
	}
	return c.enqueueLocal(ProcFeatureExchange, nil)
}

// MinUsedChans tells the central the minimum number of channels to use on
// the given PHYs. Peripheral only.
func (c *Conn) MinUsedChans(phys, count uint8) uint8 {
	if c.role != RolePeripheral {
		return pdu.ErrCmdDisallowed
	}
	if phys&phyMask == 0 || count < 2 || count > 37 {
		return pdu.ErrInvalidParam
	}
	return c.enqueueLocal(ProcMinUsedChans, func(ctx *ProcCtx) {
		ctx.data.muc = mucData{phys: phys & phyMask, count: count}
	})
}

// LEPing checks that the peer is still answering.
func (c *Conn) LEPing() uint8 {
	return c.enqueueLocal(ProcLEPing, nil)
}

// Terminate aborts every local procedure and queues LL_TERMINATE_IND.
func (c *Conn) Terminate(reason uint8) uint8 {
	if c.local.state == lrDisconnected {
		return pdu.ErrCmdDisallowed
	}
	c.lrAbort()
	return c.enqueueLocal(ProcTerminate, func(ctx *ProcCtx) {
		ctx.data.term.reason = reason
	})
}

// EncryptionStart starts encryption with the given key material. Central only.
func (c *Conn) EncryptionStart(rand [8]byte, ediv [2]byte, ltk [16]byte) uint8 {
	if c.role != RoleCentral || c.enc.enabled {
		return pdu.ErrCmdDisallowed
	}
	return c.enqueueLocal(ProcEncryptionStart, func(ctx *ProcCtx) {
		ctx.data.enc.rand = rand
		ctx.data.enc.ediv = ediv
		ctx.data.enc.ltk = ltk
	})
}

// EncryptionPause refreshes the key of an encrypted link. Central only.
func (c *Conn) EncryptionPause(rand [8]byte, ediv [2]byte, ltk [16]byte) uint8 {
	if c.role != RoleCentral || !c.enc.enabled {
		return pdu.ErrCmdDisallowed
	}
	return c.enqueueLocal(ProcEncryptionPause, func(ctx *ProcCtx) {
		ctx.data.enc.rand = rand
		ctx.data.enc.ediv = ediv
		ctx.data.enc.ltk = ltk
	})
}

// LTKReqReply answers an LTK request notification on the peripheral.
func (c *Conn) LTKReqReply(ltk [16]byte) uint8 {
	return c.ltkReply(&ltk)
}

// LTKReqNegReply refuses an LTK request; the peer gets LL_REJECT_EXT_IND.
func (c *Conn) LTKReqNegReply() uint8 {
	return c.ltkReply(nil)
}

func (c *Conn) ltkReply(ltk *[16]byte) uint8 {
	ctx := c.remote.cur
	if ctx == nil || !ctx.pause || (ctx.proc != ProcEncryptionStart && ctx.proc != ProcEncryptionPause) {
		return pdu.ErrCmdDisallowed
	}
	rpEncLTKReply(c, ctx, ltk)
	c.rrCheckDone()
	return pdu.ErrSuccess
}

// PhyUpdate requests new PHYs. tx and rx are preference masks of Phy1M,
// Phy2M and PhyCoded; PHYs the controller does not support are dropped.
func (c *Conn) PhyUpdate(tx, rx uint8) uint8 {
	sup := c.e.supportedPhys()
	if tx&phyMask == 0 || rx&phyMask == 0 {
		return pdu.ErrInvalidParam
	}
	if tx&sup == 0 || rx&sup == 0 {
		return pdu.ErrUnsuppFeatureParamVal
	}
	return c.enqueueLocal(ProcPHYUpdate, func(ctx *ProcCtx) {
		ctx.data.phy = phyData{tx: tx & sup, rx: rx & sup}
	})
}

// ConnUpdate changes the connection parameters: directly on the central,
// through a connection parameter request on the peripheral.
func (c *Conn) ConnUpdate(p ConnParams) uint8 {
	if err := p.Validate(); err != nil {
		logger.Warn(c.prefix, "conn update: %v", err)
		return pdu.ErrInvalidParam
	}
	proc := ProcConnUpdate
	if c.role == RolePeripheral {
		proc = ProcConnParamReq
	}
	return c.enqueueLocal(proc, func(ctx *ProcCtx) {
		ctx.data.cu = cuData{req: p}
	})
}

// ChanMapUpdate switches to a new channel map. Central only; at least two
// channels must be used.
func (c *Conn) ChanMapUpdate(chm [5]byte) uint8 {
	if c.role != RoleCentral {
		return pdu.ErrCmdDisallowed
	}
	if chanCount(chm) < 2 || chm[4]&0xE0 != 0 {
		return pdu.ErrInvalidParam
	}
	return c.enqueueLocal(ProcChanMapUpdate, func(ctx *ProcCtx) {
		ctx.data.chmu = chmuData{chm: chm}
	})
}

// DataLengthUpdate sets the local maximum TX octets and time and negotiates
// them with the peer.
func (c *Conn) DataLengthUpdate(octets, time uint16) uint8 {
	if octets < minOctets || octets > maxOctets || time < minTime || time > maxTime {
		return pdu.ErrInvalidParam
	}
	status := c.enqueueLocal(ProcDataLengthUpdate, nil)
	if status == pdu.ErrSuccess {
		c.dle.local.MaxTxOctets = octets
		c.dle.local.MaxTxTime = time
	}
	return status
}

// CTEReq asks the peer for a constant tone extension. minLen is in 8us units
// (2-20), cteType 0 (AoA), 1 or 2 (AoD).
func (c *Conn) CTEReq(minLen, cteType uint8) uint8 {
	if minLen < 2 || minLen > 20 || cteType > 2 {
		return pdu.ErrInvalidParam
	}
	return c.enqueueLocal(ProcCTEReq, func(ctx *ProcCtx) {
		ctx.data.cte = cteData{minLen: minLen, cteType: cteType}
	})
}

// SetCTEResponse enables or disables answering peer CTE requests.
func (c *Conn) SetCTEResponse(enable bool) {
	c.cteRsp = enable
}

// ChanMapUpdatePending returns the channel map the peer asked for while the
// peripheral waits for its instant.
func (c *Conn) ChanMapUpdatePending() ([5]byte, bool) {
	ctx := c.remote.cur
	if ctx == nil || ctx.proc != ProcChanMapUpdate || ctx.state != rpChmuWaitInstant {
		return [5]byte{}, false
	}
	return ctx.data.chmu.chm, true
}

// RemoteDLEPending reports whether a peer data length update is in progress.
func (c *Conn) RemoteDLEPending() bool {
	ctx := c.remote.cur
	return ctx != nil && ctx.proc == ProcDataLengthUpdate
}

// RemoteCPRPending reports whether a peer connection parameter request is in
// progress.
func (c *Conn) RemoteCPRPending() bool {
	ctx := c.remote.cur
	return ctx != nil && ctx.proc == ProcConnParamReq
}

// EncryptionPaused reports whether the data path is held by an encryption
// procedure.
func (c *Conn) EncryptionPaused() bool {
	return c.enc.dataPaused
}

// PeerVersion returns the cached result of the version exchange.
func (c *Conn) PeerVersion() (VersionInfo, bool) {
	return c.vex.peer, c.vex.valid
}

// PeerFeatures returns the cached result of the feature exchange.
func (c *Conn) PeerFeatures() (uint64, bool) {
	return c.fex.peer, c.fex.valid
}

// MinUsedChansInfo returns what the peripheral last sent in
// LL_MIN_USED_CHANNELS_IND.
func (c *Conn) MinUsedChansInfo() (phys, count uint8, ok bool) {
	return c.muc.phys, c.muc.count, c.muc.valid
}

// TerminateReason returns the reason the connection has to be dropped, or
// pdu.ErrSuccess while it is healthy.
func (c *Conn) TerminateReason() uint8 {
	return c.terminateReason
}

// Params returns a snapshot of the connection parameters.
func (c *Conn) Params() LinkParams {
	p := c.params
	p.Encrypted = c.enc.enabled
	p.MaxTxOctets = c.dle.eff.MaxTxOctets
	p.MaxTxTime = c.dle.eff.MaxTxTime
	p.MaxRxOctets = c.dle.eff.MaxRxOctets
	p.MaxRxTime = c.dle.eff.MaxRxTime
	return p
}
