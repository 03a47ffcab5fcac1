package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/latestcomment/round-feedback/internal/catalog"
	"github.com/latestcomment/round-feedback/internal/handlers"
	"github.com/latestcomment/round-feedback/internal/models"
	"github.com/latestcomment/round-feedback/internal/router"
	"github.com/latestcomment/round-feedback/internal/services"
)

const adminPassword = "geheim"

type failingCompleter struct{}

func (failingCompleter) Complete(context.Context, string, string) (string, error) {
	return "", io.ErrUnexpectedEOF
}

type fixedCompleter string

func (f fixedCompleter) Complete(context.Context, string, string) (string, error) {
	return string(f), nil
}

func do(app *fiber.App, req *http.Request) (*http.Response, []byte) {
	GinkgoHelper()
	resp, err := app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, body
}

func jsonRequest(method, path string, payload any) *http.Request {
	data, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withCookie(req *http.Request, cookie *http.Cookie) *http.Request {
	if cookie != nil {
		req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	return req
}

func pendingItem(participant string, round int, answers string) OmegaMatcher {
	return And(
		HaveField("Participant", participant),
		HaveField("Round", round),
		HaveField("Answers", answers),
	)
}

func decode[T any](body []byte) T {
	GinkgoHelper()
	var v T
	Expect(json.Unmarshal(body, &v)).To(Succeed())
	return v
}

var _ = Describe("Handler", func() {
	var (
		app       *fiber.App
		completer services.Completer
		cat       catalog.Catalog
	)

	BeforeEach(func() {
		completer = nil
		cat = catalog.Default()
	})

	JustBeforeEach(func() {
		store := models.NewRoundStore()
		feed := services.NewPendingFeed(store)
		classifier := services.NewClassifier(completer, cat.Automated, time.Second)
		rounds := services.NewRoundService(store, cat, classifier, feed)
		sessions := services.NewSupervisorSessions(adminPassword, time.Hour, false)

		app = router.New(router.Config{AllowedOrigin: "*"},
			handlers.NewHandler(rounds, sessions),
			handlers.NewWebSocketHandler(feed, sessions))
	})

	submit := func(payload map[string]any) (*http.Response, map[string]any) {
		resp, body := do(app, jsonRequest(http.MethodPost, "/api/feedback", payload))
		return resp, decode[map[string]any](body)
	}

	status := func(participant string, round int) map[string]any {
		q := url.Values{"participant": {participant}, "round": {strconv.Itoa(round)}}
		_, body := do(app, httptest.NewRequest(http.MethodGet, "/api/feedback_status?"+q.Encode(), nil))
		return decode[map[string]any](body)
	}

	login := func() *http.Cookie {
		GinkgoHelper()
		req := httptest.NewRequest(http.MethodPost, "/admin", strings.NewReader("password="+adminPassword))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, _ := do(app, req)
		Expect(resp.StatusCode).To(Equal(http.StatusFound))
		Expect(resp.Header.Get("Location")).To(Equal("/admin/panel"))
		for _, c := range resp.Cookies() {
			if c.Name == services.SessionCookieName {
				return c
			}
		}
		Fail("no session cookie issued")
		return nil
	}

	choose := func(cookie *http.Cookie, payload map[string]any) (*http.Response, map[string]any) {
		resp, body := do(app, withCookie(jsonRequest(http.MethodPost, "/admin/choose", payload), cookie))
		return resp, decode[map[string]any](body)
	}

	pending := func(cookie *http.Cookie) (*http.Response, []models.PendingItem) {
		resp, body := do(app, withCookie(httptest.NewRequest(http.MethodGet, "/admin/pending", nil), cookie))
		return resp, decode[[]models.PendingItem](body)
	}

	Describe("POST /api/feedback", func() {
		It("answers control rounds with empty feedback", func() {
			resp, body := submit(map[string]any{"participant": "p2", "round": 1, "source": "control", "answers": "x"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal(map[string]any{"feedback": ""}))

			Expect(status("p2", 1)).To(Equal(map[string]any{"status": "none", "feedback": ""}))
		})

		It("answers ai rounds with catalog feedback and the option", func() {
			resp, body := submit(map[string]any{"participant": "p1", "round": 1, "source": "ai", "answers": "7/8"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			opt := int(body["option"].(float64))
			Expect(opt).To(BeNumerically(">=", 1))
			Expect(opt).To(BeNumerically("<=", 3))
			Expect(body["feedback"]).To(Equal(cat.Automated[opt-1]))

			Expect(status("p1", 1)).To(Equal(map[string]any{"status": "ready", "feedback": cat.Automated[opt-1]}))
		})

		Context("when the classifier answers", func() {
			BeforeEach(func() { completer = fixedCompleter("3") })

			It("uses the classifier's option", func() {
				_, body := submit(map[string]any{"participant": "p1", "round": 2, "source": "ai", "answers": "8/8"})
				Expect(body["option"]).To(BeEquivalentTo(3))
				Expect(body["feedback"]).To(Equal(cat.Automated[2]))
			})
		})

		Context("when the classifier always fails", func() {
			BeforeEach(func() { completer = failingCompleter{} })

			It("still returns automated catalog feedback", func() {
				for round := 1; round <= 10; round++ {
					resp, body := submit(map[string]any{"participant": "p3", "round": round, "source": "ai"})
					Expect(resp.StatusCode).To(Equal(http.StatusOK))
					Expect(cat.Automated).To(ContainElement(body["feedback"]))
				}
			})
		})

		It("defers supervisor rounds", func() {
			resp, body := submit(map[string]any{"participant": "p1", "round": 1, "source": "supervisor", "answers": "5/8 correct"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(HaveKeyWithValue("status", "pending"))
			Expect(body).To(HaveKeyWithValue("feedback", BeNil()))

			Expect(status("p1", 1)).To(Equal(map[string]any{"status": "pending", "feedback": nil}))
		})

		It("accepts a JSON body sent as text/plain", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/feedback",
				strings.NewReader(`{"participant":"p9","round":"2","source":"control"}`))
			req.Header.Set("Content-Type", "text/plain")
			resp, _ := do(app, req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(status("p9", 2)).To(HaveKeyWithValue("status", "none"))
		})

		It("accepts a whole-number round sent as a decimal", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/feedback",
				strings.NewReader(`{"participant":"p4","round":3.0,"source":"control"}`))
			resp, _ := do(app, req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(status("p4", 3)).To(HaveKeyWithValue("status", "none"))
		})

		It("rejects a fractional round", func() {
			resp, body := submit(map[string]any{"participant": "p4", "round": 1.5, "source": "control"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(body).To(Equal(map[string]any{"error": "bad request"}))
		})

		DescribeTable("rejects invalid submissions without storing them",
			func(payload map[string]any) {
				resp, body := submit(payload)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(body).To(Equal(map[string]any{"error": "bad request"}))
				Expect(status("p1", 1)).To(Equal(map[string]any{"status": "not_found"}))
			},
			Entry("missing participant", map[string]any{"round": 1, "source": "ai"}),
			Entry("zero round", map[string]any{"participant": "p1", "round": 0, "source": "ai"}),
			Entry("negative round", map[string]any{"participant": "p1", "round": -1, "source": "control"}),
			Entry("unknown source", map[string]any{"participant": "p1", "round": 1, "source": "automated"}),
			Entry("missing source", map[string]any{"participant": "p1", "round": 1}),
		)

		It("rejects an undecodable body", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(`{`))
			resp, _ := do(app, req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("allows cross-origin calls", func() {
			req := jsonRequest(http.MethodPost, "/api/feedback", map[string]any{"participant": "p1", "round": 1, "source": "control"})
			req.Header.Set("Origin", "https://survey.example")
			resp, _ := do(app, req)
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("GET /api/feedback_status", func() {
		It("reports unknown rounds as not_found", func() {
			Expect(status("nobody", 4)).To(Equal(map[string]any{"status": "not_found"}))
		})

		It("treats a missing round parameter as a miss", func() {
			_, body := do(app, httptest.NewRequest(http.MethodGet, "/api/feedback_status?participant=p1", nil))
			Expect(decode[map[string]any](body)).To(Equal(map[string]any{"status": "not_found"}))
		})
	})

	Describe("supervisor login", func() {
		It("renders the login form", func() {
			resp, body := do(app, httptest.NewRequest(http.MethodGet, "/admin", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring(`name="password"`))
		})

		It("re-renders with an error on a wrong password", func() {
			req := httptest.NewRequest(http.MethodPost, "/admin", strings.NewReader("password=falsch"))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			resp, body := do(app, req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring("Falsches Passwort."))
			Expect(resp.Cookies()).NotTo(ContainElement(HaveField("Name", services.SessionCookieName)))
		})

		It("redirects a logged-in supervisor from the form to the panel", func() {
			cookie := login()
			resp, _ := do(app, withCookie(httptest.NewRequest(http.MethodGet, "/admin", nil), cookie))
			Expect(resp.StatusCode).To(Equal(http.StatusFound))
			Expect(resp.Header.Get("Location")).To(Equal("/admin/panel"))
		})

		It("guards the panel", func() {
			resp, _ := do(app, httptest.NewRequest(http.MethodGet, "/admin/panel", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusFound))
			Expect(resp.Header.Get("Location")).To(Equal("/admin"))

			resp, body := do(app, withCookie(httptest.NewRequest(http.MethodGet, "/admin/panel", nil), login()))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(ContainSubstring("Supervisor-Dashboard"))
		})

		It("revokes access on logout", func() {
			cookie := login()
			resp, _ := do(app, withCookie(httptest.NewRequest(http.MethodPost, "/admin/logout", nil), cookie))
			Expect(resp.StatusCode).To(Equal(http.StatusFound))

			resp, items := pending(cookie)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(items).To(BeEmpty())
		})
	})

	Describe("supervisor dashboard", func() {
		JustBeforeEach(func() {
			submit(map[string]any{"participant": "p2", "round": 1, "source": "supervisor", "answers": "b"})
			submit(map[string]any{"participant": "p1", "round": 2, "source": "supervisor", "answers": "a2"})
			submit(map[string]any{"participant": "p1", "round": 1, "source": "supervisor", "answers": "a1"})
			submit(map[string]any{"participant": "p0", "round": 1, "source": "ai", "answers": "c"})
			submit(map[string]any{"participant": "p0", "round": 2, "source": "control", "answers": "d"})
		})

		It("hides the queue from unauthorized callers", func() {
			resp, body := do(app, httptest.NewRequest(http.MethodGet, "/admin/pending", nil))
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(strings.TrimSpace(string(body))).To(Equal("[]"))
		})

		It("lists pending supervisor rounds in order", func() {
			resp, items := pending(login())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(items).To(HaveLen(3))
			Expect(items[0]).To(pendingItem("p1", 1, "a1"))
			Expect(items[1]).To(pendingItem("p1", 2, "a2"))
			Expect(items[2]).To(pendingItem("p2", 1, "b"))
			Expect(items[0].Waiting).NotTo(BeEmpty())
		})

		It("resolves a pending round for the participant", func() {
			cookie := login()
			resp, body := choose(cookie, map[string]any{"participant": "p1", "round": 1, "option": 2})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(body).To(Equal(map[string]any{"ok": true}))

			Expect(status("p1", 1)).To(Equal(map[string]any{"status": "ready", "feedback": cat.Human[1]}))

			_, items := pending(cookie)
			Expect(items).To(HaveLen(2))
			Expect(items).NotTo(ContainElement(pendingItem("p1", 1, "a1")))
		})

		It("requires a session to resolve", func() {
			resp, body := choose(nil, map[string]any{"participant": "p1", "round": 1, "option": 2})
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(body).To(Equal(map[string]any{"error": "unauth"}))
			Expect(status("p1", 1)).To(HaveKeyWithValue("status", "pending"))
		})

		DescribeTable("rejects bad resolutions without changing the round",
			func(payload map[string]any, code int, errTag string) {
				resp, body := choose(login(), payload)
				Expect(resp.StatusCode).To(Equal(code))
				Expect(body).To(Equal(map[string]any{"error": errTag}))
				Expect(status("p1", 1)).To(HaveKeyWithValue("status", "pending"))
			},
			Entry("unknown round", map[string]any{"participant": "ghost", "round": 1, "option": 1}, http.StatusNotFound, "not_found"),
			Entry("ai round", map[string]any{"participant": "p0", "round": 1, "option": 1}, http.StatusNotFound, "not_found"),
			Entry("option zero", map[string]any{"participant": "p1", "round": 1, "option": 0}, http.StatusBadRequest, "bad_option"),
			Entry("option four", map[string]any{"participant": "p1", "round": 1, "option": 4}, http.StatusBadRequest, "bad_option"),
		)
	})

	Describe("dashboard live feed", func() {
		It("refuses plain HTTP requests", func() {
			resp, _ := do(app, withCookie(httptest.NewRequest(http.MethodGet, "/admin/ws", nil), login()))
			Expect(resp.StatusCode).To(Equal(http.StatusUpgradeRequired))
		})

		It("refuses upgrades without a session", func() {
			req := httptest.NewRequest(http.MethodGet, "/admin/ws", nil)
			req.Header.Set("Connection", "Upgrade")
			req.Header.Set("Upgrade", "websocket")
			resp, _ := do(app, req)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	It("reports health", func() {
		resp, body := do(app, httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(decode[map[string]any](body)).To(Equal(map[string]any{"status": "ok"}))
	})
})
