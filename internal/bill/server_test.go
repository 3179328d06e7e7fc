package bill

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

// uploadBody builds a multipart receipt upload
func uploadBody(filename string, data []byte, email string) (*bytes.Buffer, string) {
	var b bytes.Buffer
	writer := multipart.NewWriter(&b)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
	}
	if email != "" {
		Expect(writer.WriteField("email", email)).To(Succeed())
	}
	Expect(writer.Close()).To(Succeed())
	return &b, writer.FormDataContentType()
}

// do sends a request with an optional JSON body
func do(method, url string, body any) *http.Response {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return string(body)
}

var anyPath = regexp.MustCompile(`.*`)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		service = NewServiceWithDeps(db, storage, "http://billed.test", &mockIDGenerator{id: "new-id"}, &defaultTimeSource{})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"} {
			ghttpServer.RouteToHandler(method, anyPath, server.ServeHTTP)
		}
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
	})

	Describe("handleListBills", func() {
		When("bills exist", func() {
			BeforeEach(func() {
				db.bills["id1"] = &Bill{ID: "id1", Email: "a@a", Date: "2001-01-01"}
				db.bills["id2"] = &Bill{ID: "id2", Email: "b@b", Date: "2002-02-02"}
			})

			It("should return all bills as JSON", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/bills")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))

				var bills []*Bill
				Expect(json.Unmarshal([]byte(readBody(resp)), &bills)).To(Succeed())
				Expect(bills).To(HaveLen(2))
			})

			It("should filter by email", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/bills?email=b@b")
				Expect(err).NotTo(HaveOccurred())

				var bills []*Bill
				Expect(json.Unmarshal([]byte(readBody(resp)), &bills)).To(Succeed())
				Expect(bills).To(HaveLen(1))
				Expect(bills[0].ID).To(Equal("id2"))
			})
		})

		When("no bills exist", func() {
			It("should return an empty array", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/bills")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(readBody(resp)).To(MatchJSON("[]"))
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/bills")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(readBody(resp)).To(MatchJSON(`{"error":"Internal server error"}`))
			})
		})
	})

	Describe("handleCreateBill", func() {
		When("a PNG receipt is uploaded", func() {
			It("should return status Created with the upload", func() {
				body, contentType := uploadBody("facture.png", pngData, "a@a.fr")
				resp, err := http.Post(ghttpServer.URL()+"/api/bills", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))

				var upload Upload
				Expect(json.Unmarshal([]byte(readBody(resp)), &upload)).To(Succeed())
				Expect(upload).To(Equal(Upload{
					FileURL:  "http://billed.test/api/bills/new-id/file",
					Key:      "new-id",
					FileName: "facture.png",
				}))
			})
		})

		When("the employee email has no domain part", func() {
			It("should return status Created", func() {
				body, contentType := uploadBody("facture.png", pngData, "a@a")
				resp, err := http.Post(ghttpServer.URL()+"/api/bills", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				resp.Body.Close()
				Expect(db.bills["new-id"].Email).To(Equal("a@a"))
			})
		})

		When("a PDF is uploaded", func() {
			It("should return status Unsupported Media Type", func() {
				body, contentType := uploadBody("facture.pdf", pdfData, "a@a.fr")
				resp, err := http.Post(ghttpServer.URL()+"/api/bills", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
				Expect(readBody(resp)).To(ContainSubstring("JPG ou PNG"))
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				body, contentType := uploadBody("", nil, "a@a.fr")
				resp, err := http.Post(ghttpServer.URL()+"/api/bills", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(ContainSubstring("Aucun fichier"))
			})
		})

		When("no email is provided", func() {
			It("should return status Bad Request with the field", func() {
				body, contentType := uploadBody("facture.png", pngData, "")
				resp, err := http.Post(ghttpServer.URL()+"/api/bills", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var answer struct {
					Fields map[string]string `json:"fields"`
				}
				Expect(json.Unmarshal([]byte(readBody(resp)), &answer)).To(Succeed())
				Expect(answer.Fields).To(HaveKey("email"))
			})
		})

		When("invalid multipart form", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/bills", "multipart/form-data", bytes.NewBufferString("invalid"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(ContainSubstring("Error parsing form"))
			})
		})

		When("storage fails", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("disk full")
			})

			It("should return status Internal Server Error", func() {
				body, contentType := uploadBody("facture.png", pngData, "a@a.fr")
				resp, err := http.Post(ghttpServer.URL()+"/api/bills", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(readBody(resp)).NotTo(ContainSubstring("disk full"))
			})
		})
	})

	Describe("handleUpdateBill", func() {
		BeforeEach(func() {
			db.bills["draft-id"] = &Bill{ID: "draft-id", Email: "a@a.fr", FileKey: "draft-id_facture.png", Status: StatusPending}
		})

		When("the bill exists", func() {
			It("should return the updated bill", func() {
				resp := do("PUT", ghttpServer.URL()+"/api/bills/draft-id", validBill())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var got Bill
				Expect(json.Unmarshal([]byte(readBody(resp)), &got)).To(Succeed())
				Expect(got.ID).To(Equal("draft-id"))
				Expect(got.Name).To(Equal("encore"))
				Expect(got.FileKey).To(Equal("draft-id_facture.png"))
			})
		})

		When("no id is given", func() {
			It("should create the bill", func() {
				resp := do("PUT", ghttpServer.URL()+"/api/bills", validBill())
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				resp.Body.Close()
				Expect(db.bills).To(HaveKey("new-id"))
			})
		})

		When("the bill does not exist", func() {
			It("should return status Not Found", func() {
				resp := do("PUT", ghttpServer.URL()+"/api/bills/nonexistent", validBill())
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
				Expect(readBody(resp)).To(ContainSubstring("Bill not found"))
			})
		})

		When("the bill is invalid", func() {
			It("should return status Bad Request", func() {
				invalid := validBill()
				invalid.Amount = -5
				resp := do("PUT", ghttpServer.URL()+"/api/bills/draft-id", invalid)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(ContainSubstring("amount"))
			})
		})

		When("the body is too large", func() {
			It("should return status Request Entity Too Large", func() {
				large := validBill()
				large.Commentary = strings.Repeat("a", int(maxBillSize))
				resp := do("PUT", ghttpServer.URL()+"/api/bills/draft-id", large)
				Expect(resp.StatusCode).To(Equal(http.StatusRequestEntityTooLarge))
				resp.Body.Close()
				Expect(db.bills["draft-id"].Name).To(BeEmpty())
			})
		})

		When("the body is not JSON", func() {
			It("should return status Bad Request", func() {
				req, err := http.NewRequest("PUT", ghttpServer.URL()+"/api/bills/draft-id", bytes.NewBufferString("{"))
				Expect(err).NotTo(HaveOccurred())
				resp, err := http.DefaultClient.Do(req)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readBody(resp)).To(ContainSubstring("Invalid request body"))
			})
		})
	})

	Describe("handleGetBill", func() {
		BeforeEach(func() {
			db.bills["test-id"] = &Bill{ID: "test-id", Name: "Test Bill"}
		})

		It("should return the bill", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/bills/test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got Bill
			Expect(json.Unmarshal([]byte(readBody(resp)), &got)).To(Succeed())
			Expect(got.Name).To(Equal("Test Bill"))
		})

		It("should return status Not Found for an unknown id", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/bills/nonexistent")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.getErr = errors.New("database error")
			})

			It("should return status Internal Server Error", func() {
				resp, err := http.Get(ghttpServer.URL() + "/api/bills/test-id")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				resp.Body.Close()
			})
		})
	})

	Describe("handleGetBillFile", func() {
		BeforeEach(func() {
			db.bills["test-id"] = &Bill{ID: "test-id", FileKey: "test-file.jpg", ContentType: "image/jpeg"}
			db.bills["missing"] = &Bill{ID: "missing", FileKey: "missing.jpg", ContentType: "image/jpeg"}
			storage.files["test-file.jpg"] = []byte("file content")
		})

		It("should return the file with its content type", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/bills/test-id/file")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
			Expect(readBody(resp)).To(Equal("file content"))
		})

		It("should return status Not Found when the file is missing from storage", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/bills/missing/file")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(readBody(resp)).To(ContainSubstring("File not found"))
		})
	})

	Describe("handleDeleteBill", func() {
		BeforeEach(func() {
			db.bills["test-id"] = &Bill{ID: "test-id", FileKey: "test-file.jpg"}
			storage.files["test-file.jpg"] = []byte("data")
		})

		It("should return status No Content and remove the bill", func() {
			resp := do("DELETE", ghttpServer.URL()+"/api/bills/test-id", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()
			Expect(db.bills).NotTo(HaveKey("test-id"))
			Expect(storage.files).NotTo(HaveKey("test-file.jpg"))
		})

		It("should return status Not Found for an unknown id", func() {
			resp := do("DELETE", ghttpServer.URL()+"/api/bills/nonexistent", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			resp.Body.Close()
		})
	})

	Describe("routing", func() {
		It("should reject unsupported methods", func() {
			resp := do("PATCH", ghttpServer.URL()+"/api/bills/test-id", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
			resp.Body.Close()
		})

		It("should answer CORS preflight requests", func() {
			resp := do("OPTIONS", ghttpServer.URL()+"/api/bills", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			resp.Body.Close()
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "user", Password: "pass"}
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/bills")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).NotTo(BeEmpty())
			resp.Body.Close()
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/bills", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest("GET", ghttpServer.URL()+"/api/bills", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("user", "pass")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})
})
