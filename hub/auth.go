package hub

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/pkg/errors"
	"github.com/vx-labs/chat-hub/events"
	"github.com/vx-labs/chat-hub/sessions"
	"go.uber.org/zap"
)

// Sign returns the signature an identity provider attaches to value.
func Sign(value, salt string) string {
	sum := sha256.Sum256([]byte(value + salt))
	return base64.StdEncoding.EncodeToString(sum[:])
}

type Claims struct {
	UserID   string
	Nickname string
	Level    int
	IDSig    string
	NickSig  string
	Secret   string
}

type Authenticator struct {
	idSalt   string
	nickSalt string
	secret   string
}

func NewAuthenticator(idSalt, nickSalt, secret string) Authenticator {
	return Authenticator{idSalt: idSalt, nickSalt: nickSalt, secret: secret}
}

// Authenticate checks the identity signature of every claim, the nickname
// signature of ordinary users, and the shared secret of privileged levels.
// Failures come with a short reason suitable as a metric label.
func (a Authenticator) Authenticate(claims Claims) (string, error) {
	if claims.UserID == "" || claims.Nickname == "" {
		return "missing_identity", errors.Wrap(ErrUnauthenticated, "missing user id or nickname")
	}
	if claims.Level >= sessions.LevelOwner {
		if a.secret == "" || !equal(claims.Secret, a.secret) {
			return "secret", errors.Wrap(ErrUnauthenticated, "invalid privileged secret")
		}
	} else if !equal(claims.NickSig, Sign(claims.Nickname, a.nickSalt)) {
		return "nickname_signature", errors.Wrap(ErrUnauthenticated, "invalid nickname signature")
	}
	if !equal(claims.IDSig, Sign(claims.UserID, a.idSalt)) {
		return "id_signature", errors.Wrap(ErrUnauthenticated, "invalid id signature")
	}
	return "", nil
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (h *Hub) admit(c *client, cmd newUser) error {
	reason, err := h.auth.Authenticate(Claims{
		UserID:   cmd.UserID,
		Nickname: cmd.Nickname,
		Level:    cmd.Level,
		IDSig:    cmd.IDSig,
		NickSig:  cmd.NickSig,
		Secret:   cmd.Secret,
	})
	if err != nil {
		authFailures.WithLabelValues(reason).Inc()
		h.auditf(c, "auth-failure", "%v", err)
		return err
	}
	bucket := sessions.BucketFor(cmd.Level, cmd.Type)
	logger := c.logger.With(zap.String("nickname", cmd.Nickname), zap.String("bucket", string(bucket)))

	if entry, ok := h.moderation.Lookup(cmd.Nickname); ok {
		if entry.Permanent {
			h.auditf(c, "banned-reconnect", "refused %s", cmd.Nickname)
			return ErrBanned
		}
		c.conn.Emit("chatStop", chatStopNotice{
			Duration: entry.Remaining(h.scheduler.Now()).Milliseconds(),
			Reason:   "reconnect",
		})
	}

	h.admission.Lock()
	defer h.admission.Unlock()
	h.evict(cmd.Nickname, c.id)

	sess := sessions.Session{
		ID:        c.id,
		Nickname:  cmd.Nickname,
		UserID:    cmd.UserID,
		Bucket:    bucket,
		Peer:      h.id,
		Connected: h.scheduler.Now().UnixNano(),
	}
	var displaced []sessions.Session
	if bucket == sessions.BucketOwner {
		displaced, err = h.registry.ReplaceOwner(sess)
	} else {
		err = h.registry.Upsert(sess)
	}
	if err != nil {
		return errors.Wrap(err, "failed to register session")
	}
	h.mtx.Lock()
	c.authenticated = true
	c.nickname = cmd.Nickname
	c.userID = cmd.UserID
	c.level = cmd.Level
	c.bucket = bucket
	h.count++
	count := h.count
	frozen := h.frozen
	h.mtx.Unlock()
	connectedCount.Set(float64(count))

	announce := events.SessionConnected{Bucket: string(bucket)}
	if bucket.Privileged() {
		announce.SessionID = sess.ID
		announce.Nickname = sess.Nickname
		announce.UserID = sess.UserID
	}
	h.publish(announce)
	h.displaceOwners(displaced)

	switch bucket {
	case sessions.BucketAdmin:
		update := adminUpdate{Type: "new-admin", AdminList: h.sessionList(sessions.BucketAdmin), PID: h.id}
		c.conn.Emit("update", update)
		h.toConsoles("update", update)
	case sessions.BucketConsole:
		c.conn.Emit("update", adminUpdate{
			Type:      "new-console",
			AdminList: h.sessionList(sessions.BucketAdmin),
			TrashList: h.trashList(),
			PID:       h.id,
		})
	case sessions.BucketOwner:
		h.toConsoles("update", ownerUpdate{Type: "owner-connect", Owner: h.owner(), PID: h.id})
	}
	c.conn.Emit("update", connectUpdate{
		Type:    "connect",
		Name:    "SERVER",
		Freeze:  frozen,
		Owner:   h.owner(),
		Count:   count,
		Notices: h.noticeMap(),
	})
	logger.Debug("session admitted")
	return nil
}

// evict drops every other session holding nickname. Local ones are closed
// here, mirrored ones are asked to leave through the bus.
func (h *Hub) evict(nickname, except string) {
	for _, old := range h.locals(withNickname(nickname)) {
		if old.id == except {
			continue
		}
		h.mtx.Lock()
		active := !old.gone
		old.gone = true
		h.mtx.Unlock()
		if !active {
			continue
		}
		old.logger.Info("evicting duplicate session")
		h.dropSession(old)
		old.conn.Close()
	}
	mirrored, err := h.registry.AllByNickname(nickname)
	if err != nil {
		return
	}
	for _, sess := range mirrored {
		if sess.Peer == h.id || sess.ID == except {
			continue
		}
		h.registry.Delete(sess.ID)
		h.publish(events.SessionEvicted{SessionID: sess.ID, Nickname: nickname})
	}
}

// dropSession removes an admitted session and announces its departure.
func (h *Hub) dropSession(c *client) {
	if err := h.registry.Delete(c.id); err != nil {
		c.logger.Warn("failed to delete session", zap.Error(err))
	}
	h.mtx.Lock()
	h.count--
	count := h.count
	h.mtx.Unlock()
	connectedCount.Set(float64(count))

	departure := events.SessionDisconnected{Bucket: string(c.bucket)}
	if c.bucket.Privileged() {
		departure.SessionID = c.id
		departure.Nickname = c.nickname
	}
	h.publish(departure)

	switch c.bucket {
	case sessions.BucketOwner:
		h.toConsoles("update", ownerUpdate{Type: "owner-disconnect", Owner: h.owner(), PID: h.id})
	case sessions.BucketAdmin:
		h.toConsoles("update", adminUpdate{Type: "admin-disconnect", AdminList: h.sessionList(sessions.BucketAdmin), PID: h.id})
	case sessions.BucketConsole:
		h.toConsoles("update", consoleUpdate{Type: "console-disconnect", ConsoleList: h.sessionList(sessions.BucketConsole), PID: h.id})
	}
	c.logger.Debug("session dropped")
}

func (h *Hub) sessionList(bucket sessions.Bucket) map[string]sessionInfo {
	out := map[string]sessionInfo{}
	set, err := h.registry.ByBucket(bucket)
	if err != nil {
		return out
	}
	for _, sess := range set {
		out[sess.Nickname] = sessionInfo{SessionID: sess.ID, Nickname: sess.Nickname, UserID: sess.UserID, PID: sess.Peer}
	}
	return out
}

func (h *Hub) owner() []string {
	set, err := h.registry.ByBucket(sessions.BucketOwner)
	if err != nil || len(set) == 0 {
		return []string{}
	}
	return []string{set[0].Nickname, set[0].UserID}
}
