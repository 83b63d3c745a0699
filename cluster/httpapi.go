package cluster

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codegangsta/negroni"
	jwt "github.com/dgrijalva/jwt-go"
	jwtrequest "github.com/dgrijalva/jwt-go/request"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// HTTPAPI exposes a small read-only status surface plus a JWT-guarded
// confirm-start endpoint, scaled down from the teacher's server/api.go
// (which serves a full embedded dashboard behind OIDC/OAuth2) to this
// spec's single-cluster, single-operator scope: one pre-shared signing
// key, no user/session system.
type HTTPAPI struct {
	Loop *ControlLoop

	signingKey    *rsa.PrivateKey
	verifyKey     *rsa.PublicKey
	pendingAnswer chan bool
}

// NewHTTPAPI generates the RSA keypair used to sign/verify the single
// bearer token this process issues to itself for the confirm-start
// endpoint, mirroring the teacher's initKeys() in server/api.go.
func NewHTTPAPI(loop *ControlLoop) (*HTTPAPI, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return &HTTPAPI{
		Loop:          loop,
		signingKey:    key,
		verifyKey:     &key.PublicKey,
		pendingAnswer: make(chan bool, 1),
	}, nil
}

// Confirmer returns a Confirmer backed by this API's confirm-start
// endpoint, for headless deployments where Lock.Acquire must wait for a
// remote operator rather than a local terminal (spec.md §8 B1 still
// requires reading a confirmation; this just relocates where it comes
// from).
func (a *HTTPAPI) Confirmer() Confirmer { return httpConfirmer{a} }

type httpConfirmer struct{ api *HTTPAPI }

func (c httpConfirmer) Confirm(prompt string) bool {
	token, err := c.api.IssueToken()
	if err != nil {
		log.WithError(err).Error("could not issue confirm-start token")
		return false
	}
	log.WithField("curl", fmt.Sprintf(
		`curl -X POST -H "Authorization: Bearer %s" http://<admin-addr>/api/confirm-start`, token)).
		Warn(prompt + " (waiting for POST /api/confirm-start)")
	return <-c.api.pendingAnswer
}

// IssueToken signs a short-lived bearer token for the operator to use
// against confirm-start; used by the CLI to print a copy-pasteable
// curl invocation when a dangerous restart needs headless confirmation.
func (a *HTTPAPI) IssueToken() (string, error) {
	claims := jwt.StandardClaims{ExpiresAt: time.Now().Add(10 * time.Minute).Unix()}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(a.signingKey)
}

func (a *HTTPAPI) authenticate(r *http.Request) bool {
	_, err := jwtrequest.ParseFromRequest(r, jwtrequest.AuthorizationHeaderExtractor,
		func(t *jwt.Token) (interface{}, error) { return a.verifyKey, nil })
	return err == nil
}

type statusResponse struct {
	Primary string              `json:"primary"`
	Nodes   map[string]nodeView `json:"nodes"`
}

type nodeView struct {
	Status string `json:"status"`
	Role   string `json:"role"`
}

func (a *HTTPAPI) statusHandler(w http.ResponseWriter, r *http.Request) {
	snap := a.Loop.Topology.Snapshot()
	resp := statusResponse{Primary: snap.Primary, Nodes: make(map[string]nodeView, len(snap.Statuses))}
	for host, n := range snap.Statuses {
		resp.Nodes[host] = nodeView{Status: string(n.Status), Role: string(n.Role)}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// heartbeatResponse mirrors the teacher's Heartbeat struct (server.go),
// narrowed to this spec's single-cluster scope (no multi-cluster UUID
// arbitration — that was the teacher's split-brain peer-voting protocol,
// out of scope here per spec.md's quorum-only, no-consensus design).
type heartbeatResponse struct {
	Cluster string   `json:"cluster"`
	Primary string   `json:"primary"`
	Hosts   []string `json:"hosts"`
	Failed  []string `json:"failed"`
}

func (a *HTTPAPI) heartbeatHandler(w http.ResponseWriter, r *http.Request) {
	snap := a.Loop.Topology.Snapshot()
	resp := heartbeatResponse{Cluster: "default", Primary: snap.Primary}
	for host, n := range snap.Statuses {
		resp.Hosts = append(resp.Hosts, host)
		if n.Status != StatusOnline {
			resp.Failed = append(resp.Failed, host)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (a *HTTPAPI) confirmStartHandler(w http.ResponseWriter, r *http.Request) {
	if !a.authenticate(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	select {
	case a.pendingAnswer <- true:
		w.WriteHeader(http.StatusOK)
	default:
		http.Error(w, "no pending confirmation", http.StatusConflict)
	}
}

// Router builds the mux.Router + negroni middleware chain, matching the
// teacher's apiserver() shape in server/api.go (gorilla/mux wrapped in
// negroni.Classic() for logging + panic recovery).
func (a *HTTPAPI) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", a.statusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/heartbeat", a.heartbeatHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/confirm-start", a.confirmStartHandler).Methods(http.MethodPost)

	n := negroni.Classic()
	n.UseHandler(r)
	return n
}

// ListenAndServe starts the HTTP admin surface on addr; callers typically
// run this in its own goroutine alongside ControlLoop.Run.
func (a *HTTPAPI) ListenAndServe(addr string) error {
	log.WithField("addr", addr).Info("starting admin HTTP API")
	return http.ListenAndServe(addr, a.Router())
}
