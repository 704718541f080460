package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DocumentStatus constants. Transitions move forward only; reprocessing is
// the one action allowed to reset a terminal document back to pending.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DocumentType is the closed set of formats the extractor knows how to
// handle. Anything else maps to TypeOther and yields empty text.
type DocumentType string

const (
	TypeText  DocumentType = "text"
	TypePDF   DocumentType = "pdf"
	TypeDocx  DocumentType = "docx"
	TypeXlsx  DocumentType = "xlsx"
	TypePptx  DocumentType = "pptx"
	TypeImage DocumentType = "image"
	TypeOther DocumentType = "other"
)

var extensionTypes = map[string]DocumentType{
	"txt":  TypeText,
	"md":   TypeText,
	"csv":  TypeText,
	"pdf":  TypePDF,
	"docx": TypeDocx,
	"doc":  TypeDocx,
	"xlsx": TypeXlsx,
	"xls":  TypeXlsx,
	"pptx": TypePptx,
	"png":  TypeImage,
	"jpg":  TypeImage,
	"jpeg": TypeImage,
	"bmp":  TypeImage,
	"gif":  TypeImage,
	"tiff": TypeImage,
	"tif":  TypeImage,
}

// TypeForFilename maps a filename to its processing type by extension.
func TypeForFilename(filename string) DocumentType {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return TypeOther
	}
	ext := strings.ToLower(filename[idx+1:])
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return TypeOther
}

// IsSupportedFilename reports whether the extension belongs to the closed set.
func IsSupportedFilename(filename string) bool {
	return TypeForFilename(filename) != TypeOther
}

// Document is the metadata record for one uploaded file. Chunks themselves
// live only in the owner's vector namespace, never on this record.
type Document struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           string             `bson:"user_id" json:"user_id"`
	Filename         string             `bson:"filename" json:"filename"`
	OriginalFilename string             `bson:"original_filename" json:"original_filename"`
	FilePath         string             `bson:"file_path" json:"-"`
	FileType         DocumentType       `bson:"file_type" json:"file_type"`
	FileSize         int64              `bson:"file_size" json:"file_size"`
	MimeType         string             `bson:"mime_type,omitempty" json:"mime_type,omitempty"`
	Status           string             `bson:"status" json:"status"`
	ErrorMessage     string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ChunkCount       int                `bson:"chunk_count" json:"chunk_count"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
	ProcessedAt      *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// DocumentUploadResponse is returned by the upload route.
type DocumentUploadResponse struct {
	Message      string     `json:"message"`
	Documents    []Document `json:"documents"`
	SuccessCount int        `json:"success_count"`
	FailedCount  int        `json:"failed_count"`
}

// DocumentListResponse is the paged list shape.
type DocumentListResponse struct {
	Documents []Document `json:"documents"`
	Total     int64      `json:"total"`
	Page      int        `json:"page"`
	PerPage   int        `json:"per_page"`
}
