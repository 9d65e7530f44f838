package parser

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tovian/tovian/internal/codec"
	"github.com/tovian/tovian/pkg/core"
)

// ErrUnknownAttribute is returned when an import row names an attribute
// that is not registered.
var ErrUnknownAttribute = errors.New("unknown attribute")

// ImportObject is one annotation object of an import document. Each row of
// AnnotationValues is ["attribute", frame, value] for local attributes or
// ["attribute", value] for global ones.
type ImportObject struct {
	Type             string  `json:"type"`
	PublicComment    string  `json:"public_comment,omitempty"`
	AnnotationValues [][]any `json:"annotation_values"`
}

// AttributeResolver looks attributes up by name.
type AttributeResolver interface {
	Get(name string) (*core.Attribute, bool)
}

// ObjectWriter stores built objects.
type ObjectWriter interface {
	AddObject(ctx context.Context, obj *core.Object) error
}

// frameFromJSON parses a frame number that may arrive as an integral float.
func frameFromJSON(raw any) (int, error) {
	f, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("frame %v is not a number: %w", raw, core.ErrInvalidValue)
	}
	if f < 0 || f != float64(int64(f)) {
		return 0, fmt.Errorf("frame %v is not a valid frame number: %w", raw, core.ErrInvalidValue)
	}
	return int(f), nil
}

// Parser provides import document -> core object conversion.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Decode reads an import document. Gzip input is detected by its magic bytes.
func Decode(r io.Reader) ([]ImportObject, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("error opening gzip stream: %w", err)
		}
		defer gz.Close()
		return decodeJSON(gz)
	}
	return decodeJSON(br)
}

func decodeJSON(r io.Reader) ([]ImportObject, error) {
	var doc []ImportObject
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("error unmarshalling import data: %w", err)
	}
	return doc, nil
}

// Build converts an import document into objects of videoID. Attribute
// names resolve through attrs; whether a row is local or global is decided
// by the attribute, not by the row length.
func (p *Parser) Build(videoID uint, doc []ImportObject, attrs AttributeResolver) ([]core.Object, error) {
	objects := make([]core.Object, 0, len(doc))
	for i, in := range doc {
		objType, err := core.ParseObjectType(in.Type)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}
		if in.AnnotationValues == nil {
			return nil, fmt.Errorf("object %d: missing annotation_values: %w", i, core.ErrInvalidValue)
		}

		obj := core.Object{
			VideoID:       videoID,
			Type:          objType,
			PublicComment: in.PublicComment,
			Values:        make([]core.AnnotationValue, 0, len(in.AnnotationValues)),
		}
		for j, row := range in.AnnotationValues {
			v, err := p.ParseValue(objType, row, attrs)
			if err != nil {
				return nil, fmt.Errorf("object %d value %d: %w", i, j, err)
			}
			obj.Values = append(obj.Values, v)
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

// ParseValue converts one annotation_values row for an object of objType.
func (p *Parser) ParseValue(objType core.ObjectType, row []any, attrs AttributeResolver) (core.AnnotationValue, error) {
	if len(row) < 2 {
		return core.AnnotationValue{}, fmt.Errorf("row %v too short: %w", row, core.ErrInvalidValue)
	}
	name, ok := row[0].(string)
	if !ok {
		return core.AnnotationValue{}, fmt.Errorf("attribute name %v is not a string: %w", row[0], core.ErrInvalidValue)
	}
	attr, ok := attrs.Get(name)
	if !ok {
		return core.AnnotationValue{}, fmt.Errorf("%q: %w", name, ErrUnknownAttribute)
	}
	if err := core.CheckObjectAttribute(objType, *attr); err != nil {
		return core.AnnotationValue{}, err
	}

	v := core.AnnotationValue{AttributeID: attr.ID, Attribute: attr}
	var raw any
	if attr.IsGlobal {
		if len(row) != 2 {
			return core.AnnotationValue{}, fmt.Errorf("global attribute %s expects [name, value]: %w", name, core.ErrInvalidValue)
		}
		raw = row[1]
	} else {
		if len(row) != 3 {
			return core.AnnotationValue{}, fmt.Errorf("local attribute %s expects [name, frame, value]: %w", name, core.ErrInvalidValue)
		}
		frame, err := frameFromJSON(row[1])
		if err != nil {
			return core.AnnotationValue{}, err
		}
		v.FrameFrom = frame
		raw = row[2]
	}

	payload, err := codec.FromJSON(raw, attr.DataType)
	if err != nil {
		return core.AnnotationValue{}, err
	}
	encoded, err := codec.Encode(payload, attr.DataType)
	if err != nil {
		return core.AnnotationValue{}, err
	}
	if err := codec.CheckAllowed(encoded, *attr); err != nil {
		return core.AnnotationValue{}, err
	}
	v.Value = payload
	return v, nil
}

// Import builds doc and stores every object through w. Objects stored
// before a failure stay stored; the returned slice holds them.
func (p *Parser) Import(ctx context.Context, w ObjectWriter, videoID uint, doc []ImportObject, attrs AttributeResolver) ([]core.Object, error) {
	objects, err := p.Build(videoID, doc, attrs)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	for i := range objects {
		if err := ctx.Err(); err != nil {
			return objects[:i], err
		}
		p.logger.DebugContext(ctx, "Importing annotation object",
			"index", i, "total", len(objects), "values", len(objects[i].Values))
		if err := w.AddObject(ctx, &objects[i]); err != nil {
			return objects[:i], fmt.Errorf("object %d: %w", i, err)
		}
	}

	elapsed := time.Since(start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(len(objects)) / elapsed.Seconds()
	}
	p.logger.InfoContext(ctx, "Imported annotation objects",
		"video", videoID, "objects", len(objects), "duration", elapsed, "objectsPerSecond", rate)
	return objects, nil
}
