package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/TIANLI0/MaskKit/config"
	"github.com/TIANLI0/MaskKit/model"
	"github.com/TIANLI0/MaskKit/service"
	"github.com/gin-gonic/gin"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	svc := service.NewSmartMaskService(&cfg.Mask, &cfg.Pipeline, nil, service.NopFaceCache{})
	h := NewCompositeHandler(cfg, svc)

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/composite", h.Composite)
	api.GET("/presets", h.Presets)
	return r
}

func createTestImage(width, height int, edited bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{uint8(x * 2), uint8(y * 2), 90, 255}
			if edited && x >= width/4 && x < 3*width/4 && y >= height/4 && y < 3*height/4 {
				c = color.NRGBA{20, 40, 230, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newMultipart(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for name, data := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="`+name+`"; filename="`+name+`.png"`)
		hdr.Set("Content-Type", "image/png")
		part, err := w.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(data)
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()
	return body, w.FormDataContentType()
}

func doComposite(t *testing.T, r *gin.Engine, files map[string][]byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := newMultipart(t, files, fields)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/composite", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCompositeSuccess(t *testing.T) {
	r := setupRouter()
	files := map[string][]byte{
		"original": encodePNG(t, createTestImage(100, 80, false)),
		"result":   encodePNG(t, createTestImage(100, 80, true)),
	}

	rec := doComposite(t, r, files, map[string]string{
		"preset":       "PortraitUpperBody",
		"include_mask": "true",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp model.CompositeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Data == nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Data.Metadata.Width != 100 || resp.Data.Metadata.Height != 80 {
		t.Errorf("metadata size = %dx%d", resp.Data.Metadata.Width, resp.Data.Metadata.Height)
	}
	if resp.Data.Metadata.ThresholdUsed != 6.5 {
		t.Errorf("threshold = %v, want preset 6.5", resp.Data.Metadata.ThresholdUsed)
	}
	if resp.Data.Mask == "" {
		t.Errorf("mask requested but missing")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data.Image)
	if err != nil {
		t.Fatalf("image base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("image png: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 80 {
		t.Errorf("composite size = %v", img.Bounds())
	}
	if resp.Data.MaskBBox.Width == 0 {
		t.Errorf("expected a non-empty mask bbox")
	}
}

func TestCompositeDimensionMismatch(t *testing.T) {
	r := setupRouter()
	rec := doComposite(t, r, map[string][]byte{
		"original": encodePNG(t, createTestImage(40, 40, false)),
		"result":   encodePNG(t, createTestImage(40, 41, true)),
	}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCompositeMissingFile(t *testing.T) {
	r := setupRouter()
	rec := doComposite(t, r, map[string][]byte{
		"original": encodePNG(t, createTestImage(10, 10, false)),
	}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCompositeBadParameter(t *testing.T) {
	r := setupRouter()
	files := map[string][]byte{
		"original": encodePNG(t, createTestImage(10, 10, false)),
		"result":   encodePNG(t, createTestImage(10, 10, true)),
	}

	for field, value := range map[string]string{
		"threshold":         "high",
		"feather_radius":    "-2",
		"difference_method": "hsv",
		"preset":            "Nope",
		"faces":             "1,2,3",
	} {
		rec := doComposite(t, r, files, map[string]string{field: value})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s=%s: status = %d, want 400", field, value, rec.Code)
		}
	}
}

func TestCompositeWithFaces(t *testing.T) {
	r := setupRouter()
	files := map[string][]byte{
		"original": encodePNG(t, createTestImage(200, 200, false)),
		"result":   encodePNG(t, createTestImage(200, 200, true)),
	}

	rec := doComposite(t, r, files, map[string]string{
		"faces":     "50,50,100,100",
		"threshold": "5",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp model.CompositeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Metadata.FacesExcluded != 1 {
		t.Errorf("faces excluded = %d, want 1", resp.Data.Metadata.FacesExcluded)
	}
}

func TestPresets(t *testing.T) {
	r := setupRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/presets", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp model.PresetListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 4 {
		t.Errorf("got %d presets, want 4", len(resp.Data))
	}
}
