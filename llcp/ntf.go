package llcp

func (e *Engine) ntfPeek() bool {
	return e.rx.AllocPeek(1)
}

// ntfSend must only follow a successful ntfPeek.
func (e *Engine) ntfSend(c *Conn, n Notification) {
	rx := e.rx.Alloc()
	if rx == nil {
		panic("llcp: rx pool empty after successful peek")
	}
	rx.Handle = c.handle
	rx.Ntf = n
	e.host.Notify(rx)
}

// notify hands n to the host, or reports false when no RX node is free and
// the caller has to try again on a later event.
func (c *Conn) notify(n Notification) bool {
	if !c.e.ntfPeek() {
		return false
	}
	c.debug("ntf %s", n.Kind())
	c.e.ntfSend(c, n)
	return true
}
