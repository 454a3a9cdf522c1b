package llcp

import (
	"github.com/user/blue-llcp/logger"
	"github.com/user/blue-llcp/pdu"
)

type cuData struct {
	req ConnParams

	interval uint16
	latency  uint16
	timeout  uint16
	instant  uint16
}

// cuPick chooses the new interval inside the requested range, keeping the
// current one when it fits.
func cuPick(c *Conn, d *cuData) {
	d.interval = d.req.IntervalMax
	if cur := c.params.Interval; cur >= d.req.IntervalMin && cur <= d.req.IntervalMax {
		d.interval = cur
	}
	d.latency = d.req.Latency
	d.timeout = d.req.Timeout
}

func cuTxUpdateInd(c *Conn, ctx *ProcCtx) bool {
	d := &ctx.data.cu
	d.instant = c.instant()
	ind := &pdu.ConnUpdateInd{
		WinSize:   1,
		WinOffset: 0,
		Interval:  d.interval,
		Latency:   d.latency,
		Timeout:   d.timeout,
		Instant:   d.instant,
	}
	return c.tx(ctx, ind) != nil
}

func cuRxUpdateInd(c *Conn, ctx *ProcCtx, p *pdu.ConnUpdateInd) bool {
	d := &ctx.data.cu
	d.interval, d.latency, d.timeout, d.instant = p.Interval, p.Latency, p.Timeout, p.Instant
	if instantPassed(c.link.EventCounter(), d.instant) {
		c.instantPassed(ctx)
		return false
	}
	return true
}

func cuApply(c *Conn, d *cuData) bool {
	p := &c.params
	changed := p.Interval != d.interval || p.Latency != d.latency || p.Timeout != d.timeout
	p.Interval, p.Latency, p.Timeout = d.interval, d.latency, d.timeout
	if changed {
		logger.Info(c.prefix, "conn params interval %d latency %d timeout %d", p.Interval, p.Latency, p.Timeout)
	}
	return changed
}

func cuNtf(c *Conn, status uint8) ConnUpdateNtf {
	return ConnUpdateNtf{
		Status:   status,
		Interval: c.params.Interval,
		Latency:  c.params.Latency,
		Timeout:  c.params.Timeout,
	}
}

func cuConnParam(d *cuData, refEvent uint16) pdu.ConnParam {
	return pdu.ConnParam{
		IntervalMin:   d.req.IntervalMin,
		IntervalMax:   d.req.IntervalMax,
		Latency:       d.req.Latency,
		Timeout:       d.req.Timeout,
		RefEventCount: refEvent,
		Offsets:       [6]uint16{0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF, 0xFFFF},
	}
}

// Local: ProcConnUpdate on the central, ProcConnParamReq on the peripheral.
const (
	lpCuIdle uint8 = iota
	lpCuWaitRxConnUpdateInd
	lpCuWaitInstant
	lpCuWaitNtf
)

type lpCu struct{}

func (lpCu) init(ctx *ProcCtx) { ctx.state = lpCuIdle }

func (lpCu) run(c *Conn, ctx *ProcCtx) {
	d := &ctx.data.cu
	switch ctx.state {
	case lpCuIdle:
		if ctx.proc == ProcConnUpdate {
			cuPick(c, d)
			if !cuTxUpdateInd(c, ctx) {
				return
			}
			c.remote.incompat = incompatReserved
			ctx.state = lpCuWaitInstant
			return
		}
		req := &pdu.ConnParamReq{ConnParam: cuConnParam(d, c.link.EventCounter())}
		if c.tx(ctx, req) == nil {
			return
		}
		c.remote.incompat = incompatResolvable
		ctx.expect(pdu.OpConnUpdateInd)
		ctx.state = lpCuWaitRxConnUpdateInd

	case lpCuWaitInstant:
		if instantReached(c.link.EventCounter(), d.instant) {
			cuApply(c, d)
			ctx.state = lpCuWaitNtf
			lpCuNotify(c, ctx)
		}

	case lpCuWaitNtf:
		lpCuNotify(c, ctx)
	}
}

func (lpCu) rx(c *Conn, ctx *ProcCtx, data []byte) {
	if ctx.state != lpCuWaitRxConnUpdateInd {
		// a refusal arriving after LL_CONNECTION_UPDATE_IND is stale
		return
	}
	switch pdu.Opcode(data) {
	case pdu.OpRejectInd, pdu.OpRejectExtInd, pdu.OpUnknownRsp:
		var code uint8 = pdu.ErrUnsuppRemoteFeature
		if rc, ok := pdu.RejectCode(data); ok {
			code = rc
		}
		if ctx.collision && pdu.IsCollision(code) {
			c.lrRetry(ctx)
			return
		}
		logger.Info(c.prefix, "local %s refused by peer: %s", ctx.proc, pdu.ErrorName(code))
		ctx.data.status = code
		ctx.rxOpcode = pdu.OpInvalid
		ctx.state = lpCuWaitNtf
		lpCuNotify(c, ctx)
		return
	}
	ctx.rxOpcode = pdu.OpInvalid
	pkt, err := pdu.DecodePacket(data)
	if err != nil {
		logger.Warn(c.prefix, "local %s: %v", ctx.proc, err)
		ctx.complete()
		return
	}
	if p, ok := pkt.(*pdu.ConnUpdateInd); ok && cuRxUpdateInd(c, ctx, p) {
		ctx.state = lpCuWaitInstant
	}
}

func lpCuNotify(c *Conn, ctx *ProcCtx) {
	if c.notify(cuNtf(c, ctx.data.status)) {
		ctx.complete()
	}
}

func (lpCu) txAck(*Conn, *ProcCtx, *TxNode) {}

// Remote: LL_CONNECTION_UPDATE_IND on the peripheral, LL_CONNECTION_PARAM_REQ
// on either role.
const (
	rpCuWaitRx uint8 = iota
	rpCuWaitTxReject
	rpCuWaitTxConnParamRsp
	rpCuWaitRxConnUpdateInd
	rpCuWaitTxConnUpdateInd
	rpCuWaitInstant
	rpCuWaitNtf
)

type rpCu struct{}

func (rpCu) init(ctx *ProcCtx) { ctx.state = rpCuWaitRx }

func (rpCu) run(c *Conn, ctx *ProcCtx) { rpCuStep(c, ctx) }

func rpCuStep(c *Conn, ctx *ProcCtx) {
	d := &ctx.data.cu
	switch ctx.state {
	case rpCuWaitTxReject:
		if c.reject(ctx, pdu.OpConnParamReq, ctx.data.status) {
			ctx.complete()
		}

	case rpCuWaitTxConnParamRsp:
		rsp := &pdu.ConnParamRsp{ConnParam: cuConnParam(d, c.link.EventCounter())}
		if c.tx(ctx, rsp) == nil {
			return
		}
		ctx.expect(pdu.OpConnUpdateInd)
		ctx.state = rpCuWaitRxConnUpdateInd

	case rpCuWaitTxConnUpdateInd:
		if !cuTxUpdateInd(c, ctx) {
			return
		}
		ctx.state = rpCuWaitInstant

	case rpCuWaitInstant:
		if !instantReached(c.link.EventCounter(), d.instant) {
			return
		}
		if !cuApply(c, d) {
			ctx.complete()
			return
		}
		ctx.state = rpCuWaitNtf
		rpCuStep(c, ctx)

	case rpCuWaitNtf:
		if c.notify(cuNtf(c, pdu.ErrSuccess)) {
			ctx.complete()
		}
	}
}

func (rpCu) rx(c *Conn, ctx *ProcCtx, data []byte) {
	pkt, err := pdu.DecodePacket(data)
	if err != nil {
		logger.Warn(c.prefix, "remote %s: %v", ctx.proc, err)
		ctx.complete()
		return
	}
	d := &ctx.data.cu
	switch p := pkt.(type) {
	case *pdu.ConnUpdateInd:
		if ctx.state != rpCuWaitRx && ctx.state != rpCuWaitRxConnUpdateInd {
			return
		}
		ctx.rxOpcode = pdu.OpInvalid
		if cuRxUpdateInd(c, ctx, p) {
			ctx.state = rpCuWaitInstant
		}

	case *pdu.ConnParamReq:
		if ctx.state != rpCuWaitRx {
			return
		}
		d.req = ConnParams{
			IntervalMin: p.IntervalMin,
			IntervalMax: p.IntervalMax,
			Latency:     p.Latency,
			Timeout:     p.Timeout,
		}
		if err := d.req.Validate(); err != nil {
			logger.Warn(c.prefix, "peer connection parameters: %v", err)
			ctx.data.status = pdu.ErrInvalidLLParam
			ctx.responseOpcode = pdu.OpRejectExtInd
			ctx.state = rpCuWaitTxReject
		} else if c.role == RoleCentral {
			cuPick(c, d)
			ctx.responseOpcode = pdu.OpConnUpdateInd
			ctx.state = rpCuWaitTxConnUpdateInd
		} else {
			ctx.responseOpcode = pdu.OpConnParamRsp
			ctx.state = rpCuWaitTxConnParamRsp
		}
		rpCuStep(c, ctx)

	default:
		// refusal of our LL_CONNECTION_PARAM_RSP
		ctx.complete()
	}
}

func (rpCu) txAck(*Conn, *ProcCtx, *TxNode) {}
