package symidx

// parseVerdef walks a DT_VERDEF chain (Elf64_Verdef/Elf64_Verdaux,
// identical layout in both ELF classes) and records each definition's own
// version index under its name and the name's ELF hash.
//
// Layout (all fields 32-bit aligned, byte offsets given from each record's
// start):
//
//	Verdef:  vd_version u16, vd_flags u16, vd_ndx u16, vd_cnt u16,
//	         vd_hash u32, vd_aux u32 (offset to first Verdaux), vd_next u32
//	Verdaux: vda_name u32 (DT_STRTAB offset), vda_next u32
func parseVerdef(mem Memory, addr, strtabAddr uintptr, count int, out map[uint16]VersionEntry) {
	cur := addr
	for i := 0; i < count && cur != 0; i++ {
		vdNdx := readU16(mem, cur+4)
		vdAux := mem.Uint32(cur + 12)
		vdNext := mem.Uint32(cur + 16)

		if vdAux != 0 {
			auxAddr := cur + uintptr(vdAux)
			nameOff := mem.Uint32(auxAddr)
			name := CString(mem, strtabAddr+uintptr(nameOff))
			out[vdNdx&0x7fff] = VersionEntry{Name: name, Hash: SysVHash(name)}
		}
		if vdNext == 0 {
			break
		}
		cur += uintptr(vdNext)
	}
}

// parseVerneed walks a DT_VERNEED chain (Elf64_Verneed/Elf64_Vernaux) and
// records each imported version's index under its name/hash, exactly as
// parseVerdef does for local definitions — a versioned reference can be
// satisfied by either table depending on whether the symbol is defined
// locally or imported.
//
//	Verneed:  vn_version u16, vn_cnt u16, vn_file u32, vn_aux u32, vn_next u32
//	Vernaux:  vna_hash u32, vna_flags u16, vna_other u16 (version index),
//	          vna_name u32, vna_next u32
func parseVerneed(mem Memory, addr, strtabAddr uintptr, count int, out map[uint16]VersionEntry) {
	cur := addr
	for i := 0; i < count && cur != 0; i++ {
		vnCnt := readU16(mem, cur+2)
		vnAux := mem.Uint32(cur + 8)
		vnNext := mem.Uint32(cur + 12)

		auxCur := cur + uintptr(vnAux)
		for j := 0; j < int(vnCnt) && auxCur != 0; j++ {
			vnaHash := mem.Uint32(auxCur)
			vnaOther := readU16(mem, auxCur+6)
			vnaName := mem.Uint32(auxCur + 8)
			vnaNext := mem.Uint32(auxCur + 12)

			name := CString(mem, strtabAddr+uintptr(vnaName))
			out[vnaOther&0x7fff] = VersionEntry{Name: name, Hash: vnaHash}

			if vnaNext == 0 {
				break
			}
			auxCur += uintptr(vnaNext)
		}

		if vnNext == 0 {
			break
		}
		cur += uintptr(vnNext)
	}
}

func readU16(mem Memory, addr uintptr) uint16 {
	b := mem.Bytes(addr, 2)
	return uint16(b[0]) | uint16(b[1])<<8
}
