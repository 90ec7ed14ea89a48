package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/avvvet/healthcard-services/internal/cardsvc/artifact"
	"github.com/avvvet/healthcard-services/internal/cardsvc/codeimage"
	"github.com/avvvet/healthcard-services/internal/cardsvc/models"
	"github.com/avvvet/healthcard-services/internal/cardsvc/service"
	"github.com/avvvet/healthcard-services/internal/cardsvc/store"
	"github.com/avvvet/healthcard-services/internal/cardsvc/web"
	"github.com/go-chi/chi"
	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cardIDPattern = regexp.MustCompile(`CARD[0-9A-F]{8}`)

type memRepo struct {
	mu    sync.Mutex
	cards map[string]models.Card
}

func (m *memRepo) Insert(ctx context.Context, card *models.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cards[card.CardID]; ok {
		return store.ErrDuplicateCardID
	}
	m.cards[card.CardID] = *card
	return nil
}

func (m *memRepo) GetByCardID(ctx context.Context, cardID string) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cards[cardID]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	return &c, nil
}

type testEnv struct {
	handler *Handler
	router  *chi.Mux
	repo    *memRepo
	files   *artifact.DiskStorage
}

func newEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	files, err := artifact.NewDiskStorage(t.TempDir())
	require.NoError(t, err)
	pages, err := web.NewRenderer()
	require.NoError(t, err)

	repo := &memRepo{cards: map[string]models.Card{}}
	svc := service.NewCardService(repo, files, codeimage.NewGenerator(0), nil)
	h := NewHandler(svc, files, pages, opts)

	r := chi.NewRouter()
	h.SetRoutes(r)
	return &testEnv{handler: h, router: r, repo: repo, files: files}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type filePart struct {
	name string
	body string
}

func multipartRequest(t *testing.T, fields map[string]string, files map[string]filePart) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, f := range files {
		fw, err := mw.CreateFormFile(field, f.name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, f.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/generate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func issue(t *testing.T, e *testEnv, req *http.Request) string {
	t.Helper()
	rec := e.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := cardIDPattern.FindString(rec.Body.String())
	require.NotEmpty(t, id)
	return id
}

func decodeQR(t *testing.T, png []byte) string {
	t.Helper()
	img, _, err := image.Decode(bytes.NewReader(png))
	require.NoError(t, err)
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)
	res, err := zxqr.NewQRCodeReader().Decode(bmp, nil)
	require.NoError(t, err)
	return res.GetText()
}

func TestIndex(t *testing.T) {
	e := newEnv(t, Options{})
	rec := e.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/generate"`)
	assert.Contains(t, rec.Body.String(), `name="document3"`)
}

func TestGenerate_RoundTrip(t *testing.T) {
	e := newEnv(t, Options{})
	fields := map[string]string{
		"name":             "  Grace Hopper  ",
		"blood_group":      "A+",
		"allergies":        "shellfish\n",
		"emergency_name1":  "Vincent",
		"emergency_phone1": "555-0100",
		"relation1":        "spouse",
	}
	id := issue(t, e, multipartRequest(t, fields, map[string]filePart{
		"photo":     {"grace.png", "img"},
		"document2": {"xray.pdf", "%PDF"},
	}))

	stored := e.repo.cards[id]
	assert.Equal(t, "  Grace Hopper  ", stored.Name)
	assert.Equal(t, "shellfish\n", stored.Allergies)
	assert.Equal(t, "", stored.DOB)
	assert.Equal(t, models.EmergencyContact{Name: "Vincent", Phone: "555-0100", Relation: "spouse"}, stored.EmergencyContacts[0])
	assert.Equal(t, id+"_grace.png", stored.Photo)
	assert.Equal(t, [3]string{"", id + "_doc2_xray.pdf", ""}, stored.Documents)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/view/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Grace Hopper")
	assert.Contains(t, body, "A+")
	assert.Contains(t, body, "/static/documents/"+id+"_doc2_xray.pdf")
	assert.Contains(t, body, "/static/uploads/"+id+"_grace.png")

	rec = e.do(httptest.NewRequest(http.MethodGet, "/download_card/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/static/qr/"+id+".png")

	rec = e.do(httptest.NewRequest(http.MethodGet, "/static/documents/"+id+"_doc2_xray.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
}

func TestGenerate_CodeImageEncodesViewURL(t *testing.T) {
	e := newEnv(t, Options{})
	req := multipartRequest(t, map[string]string{"name": "x"}, nil)
	req.Host = "cards.local:10000"
	id := issue(t, e, req)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/static/qr/"+id+".png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "http://cards.local:10000/view/"+id, decodeQR(t, rec.Body.Bytes()))
}

func TestGenerate_PublicBaseURLAndForwardedProto(t *testing.T) {
	e := newEnv(t, Options{PublicBaseURL: "https://cards.example.org"})
	id := issue(t, e, multipartRequest(t, nil, nil))
	rec := e.do(httptest.NewRequest(http.MethodGet, "/static/qr/"+id+".png", nil))
	assert.Equal(t, "https://cards.example.org/view/"+id, decodeQR(t, rec.Body.Bytes()))

	e = newEnv(t, Options{})
	req := multipartRequest(t, nil, nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	id = issue(t, e, req)
	rec = e.do(httptest.NewRequest(http.MethodGet, "/static/qr/"+id+".png", nil))
	assert.Equal(t, "https://example.com/view/"+id, decodeQR(t, rec.Body.Bytes()))
}

func TestGenerate_UnknownForwardedProtoIgnored(t *testing.T) {
	e := newEnv(t, Options{})
	for _, proto := range []string{"javascript", "file", "ftp, https"} {
		req := multipartRequest(t, nil, nil)
		req.Header.Set("X-Forwarded-Proto", proto)
		id := issue(t, e, req)

		rec := e.do(httptest.NewRequest(http.MethodGet, "/static/qr/"+id+".png", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http://example.com/view/"+id, decodeQR(t, rec.Body.Bytes()), proto)
	}
}

func TestGenerate_NoDocuments(t *testing.T) {
	e := newEnv(t, Options{})
	id := issue(t, e, multipartRequest(t, map[string]string{"name": "Solo"}, nil))

	assert.Equal(t, [3]string{}, e.repo.cards[id].Documents)
	assert.Equal(t, "", e.repo.cards[id].Photo)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/view/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `class="document"`)
	assert.NotContains(t, rec.Body.String(), "/static/documents/")
}

func TestGenerate_URLEncodedForm(t *testing.T) {
	e := newEnv(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader("name=Plain&gender=Female"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	id := issue(t, e, req)

	assert.Equal(t, "Plain", e.repo.cards[id].Name)
	assert.Equal(t, "Female", e.repo.cards[id].Gender)
}

func TestGenerate_TraversalFilename(t *testing.T) {
	e := newEnv(t, Options{})
	id := issue(t, e, multipartRequest(t, nil, map[string]filePart{
		"document1": {"../../etc/passwd", "root:x:0:0"},
	}))

	name := e.repo.cards[id].Documents[0]
	require.NotEmpty(t, name)
	assert.NotContains(t, name, "/")
	assert.NotContains(t, name, "..")
	assert.True(t, strings.HasPrefix(name, id+"_doc1_"))

	rc, err := e.files.Open(context.Background(), artifact.FolderDocuments, name)
	require.NoError(t, err)
	rc.Close()
}

func TestGenerate_EmptyFilePartIsNoFile(t *testing.T) {
	e := newEnv(t, Options{})
	id := issue(t, e, multipartRequest(t, nil, map[string]filePart{
		"photo": {"", ""},
	}))
	assert.Equal(t, "", e.repo.cards[id].Photo)
}

func TestGenerate_TooLarge(t *testing.T) {
	e := newEnv(t, Options{MaxUploadBytes: 1024})
	rec := e.do(multipartRequest(t, nil, map[string]filePart{
		"photo": {"big.png", strings.Repeat("x", 4096)},
	}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, e.repo.cards)
}

func TestGenerate_FieldTooLong(t *testing.T) {
	e := newEnv(t, Options{})
	rec := e.do(multipartRequest(t, map[string]string{"name": strings.Repeat("n", 1025)}, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name")
	assert.Empty(t, e.repo.cards)
}

func TestGenerate_LongMedicalTextAccepted(t *testing.T) {
	e := newEnv(t, Options{})
	conditions := strings.Repeat("chronic asthma, seasonal; ", 400)
	id := issue(t, e, multipartRequest(t, map[string]string{
		"name":       strings.Repeat("n", 300),
		"conditions": conditions,
	}, nil))

	assert.Equal(t, conditions, e.repo.cards[id].Conditions)
}

type failingCards struct{}

func (failingCards) IssueCard(context.Context, service.IssueRequest) (*models.Card, error) {
	return nil, errors.New("disk full")
}

func (failingCards) GetCard(context.Context, string) (*models.Card, error) {
	return nil, errors.New("db down")
}

func TestGenerate_ServiceFailure(t *testing.T) {
	pages, err := web.NewRenderer()
	require.NoError(t, err)
	h := NewHandler(failingCards{}, nil, pages, Options{})
	r := chi.NewRouter()
	h.SetRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, multipartRequest(t, nil, nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/view/CARD00000001", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestUnknownCard_NotFound(t *testing.T) {
	e := newEnv(t, Options{})
	for _, path := range []string{"/view/CARDDEADBEEF", "/download_card/CARDDEADBEEF", "/view/not-a-card"} {
		rec := e.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "Health card not found", rec.Body.String(), path)
	}
}

func TestCardJSON(t *testing.T) {
	e := newEnv(t, Options{})
	id := issue(t, e, multipartRequest(t, map[string]string{"name": "Json"}, nil))

	rec := e.do(httptest.NewRequest(http.MethodGet, "/v1/cards/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var rsp struct {
		Code int         `json:"code"`
		Data models.Card `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rsp))
	assert.Equal(t, id, rsp.Data.CardID)
	assert.Equal(t, "Json", rsp.Data.Name)

	rec = e.do(httptest.NewRequest(http.MethodGet, "/v1/cards/CARDDEADBEEF", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestArtifactHandler(t *testing.T) {
	e := newEnv(t, Options{})
	ctx := context.Background()
	require.NoError(t, e.files.Save(ctx, artifact.FolderDocuments, "CARD00000001_doc1_page.html", strings.NewReader("<b>hi</b>")))

	rec := e.do(httptest.NewRequest(http.MethodGet, "/static/documents/CARD00000001_doc1_page.html", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	for _, path := range []string{"/static/secrets/x", "/static/documents/missing.pdf", "/static/documents/.."} {
		rec := e.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestHealth_JWT(t *testing.T) {
	e := newEnv(t, Options{Instance: "test"})
	e.handler.InitAuth("s3cret")
	r := chi.NewRouter()
	e.handler.SetRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, token, err := e.handler.tokenAuth.Encode(map[string]interface{}{"service_id": "ops"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"instance":"test"`)
}

func TestHealth_OpenWithoutSecret(t *testing.T) {
	e := newEnv(t, Options{})
	rec := e.do(httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
