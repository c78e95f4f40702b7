package hid

import "testing"

func TestDecodeCommandWordSimpleReportID(t *testing.T) {
	word := uint16(OpGetReport)<<8 | uint16(ReportTypeFeature)<<4 | 3
	op, rt, id, extended := decodeCommandWord(word)
	if op != OpGetReport || rt != ReportTypeFeature || id != 3 || extended {
		t.Fatalf("decode = (%v,%v,%d,%v)", op, rt, id, extended)
	}
}

func TestDecodeCommandWordExtendedReportID(t *testing.T) {
	word := uint16(OpSetReport)<<8 | uint16(ReportTypeOutput)<<4 | extendedReportID
	op, rt, id, extended := decodeCommandWord(word)
	if op != OpSetReport || rt != ReportTypeOutput || !extended {
		t.Fatalf("decode = (%v,%v,%d,%v)", op, rt, id, extended)
	}
}

func TestEncodeCommandWordRoundTrip(t *testing.T) {
	word, extended, _ := encodeCommandWord(OpGetIdle, ReportTypeInput, 5)
	op, rt, id, ext := decodeCommandWord(word)
	if extended || ext {
		t.Fatalf("unexpected extension for small id")
	}
	if op != OpGetIdle || rt != ReportTypeInput || id != 5 {
		t.Fatalf("round trip = (%v,%v,%d)", op, rt, id)
	}
}

func TestEncodeCommandWordExtendsLargeReportID(t *testing.T) {
	word, extended, extByte := encodeCommandWord(OpSetReport, ReportTypeFeature, 42)
	if !extended || extByte != 42 {
		t.Fatalf("expected extension byte 42, got extended=%v byte=%d", extended, extByte)
	}
	_, _, id, ext := decodeCommandWord(word)
	if id != extendedReportID || !ext {
		t.Fatalf("word should carry the extended marker, got id=%d ext=%v", id, ext)
	}
}

func TestOpcodeRequestKindRoundTrip(t *testing.T) {
	for _, op := range []Opcode{OpReset, OpGetReport, OpSetReport, OpGetIdle, OpSetIdle, OpGetProtocol, OpSetProtocol, OpSetPower, OpVendor} {
		kind, err := requestKindFor(op)
		if err != nil {
			t.Fatalf("requestKindFor(%v): %v", op, err)
		}
		back, ok := opcodeFor(kind)
		if !ok || back != op {
			t.Fatalf("opcodeFor(%v) = (%v,%v), want (%v,true)", kind, back, ok, op)
		}
	}
}
