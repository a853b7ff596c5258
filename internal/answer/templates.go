package answer

import (
	"fmt"
	"strings"

	"github.com/diyoloji/support-engine/internal/category"
)

// fallbackTemplate is one deterministic rules answer: a title line, bullet
// observations, and numbered steps.
type fallbackTemplate struct {
	title   string
	bullets []string
	steps   []string
}

var fallbackTemplates = map[category.Tool]fallbackTemplate{
	category.ToolApp: {
		title: "Giriş yapamama sorunu için kontrol edilmesi gerekenler:",
		bullets: []string{
			"Sunucu yoğunluğu, ağ/geçici hata veya cihaz tarih/saat senkron sorunu olabilir.",
			"Hesap şifresi/OTP SMS engeli, çoklu cihaz oturumu veya eski sürüm kaynaklı olabilir.",
		},
		steps: []string{
			"Uygulamayı güncelle, cihazı yeniden başlat.",
			"Wi-Fi/LTE değiştir, uçak modunu aç/kapat; mümkünse VPN kapalı dene.",
			"Ayarlar > Uygulamalar > Dijital Operatör > Önbelleği temizle / Zorla durdur.",
			"Şifreni sıfırla; OTP SMS'nin engellenmediğinden emin ol (mesaj filtreleri/operatör engelleri).",
			"Sorun sürerse hata ekranının saatiyle birlikte geri bildirim gönder.",
		},
	},
	category.ToolRoaming: {
		title: "Yurt dışı kullanımıyla ilgili kontrol listesi:",
		bullets: []string{
			"Bulunduğun ülkede anlaşmalı operatör ve profil seçiminde sorun olabilir.",
			"Paketin bitmiş veya paket dışı ücretlendirme başlamış olabilir.",
		},
		steps: []string{
			"Cihazda veri dolaşımı açık mı kontrol et.",
			"Operatör seçiminde 'Otomatik'i kapatıp önerilen partneri elle seç.",
			"Dijital Operatör'den ülke/paket durumunu ve kullanımını kontrol et.",
			"Gerekirse yurt dışı ek paket satın al.",
		},
	},
	category.ToolPackage: {
		title: "Paket bitimi/ekstra ücretlendirme için öneriler:",
		bullets: []string{
			"Paketin bitişi sonrası paket dışı ücretlendirme başlamış olabilir.",
			"Kampanya/paket değişimi kısmi dönem ücretini tetiklemiş olabilir.",
		},
		steps: []string{
			"Dijital Operatör'den kalanları ve paket bitiş tarihini kontrol et.",
			"Gerekiyorsa ek paket satın al veya tarifeni yükselt.",
			"Paket dışı kullanım uyarılarını aç (SMS/bildirim).",
			"Detay kullanım dökümünde beklenmeyen bir kalem varsa destekle iletişime geç.",
		},
	},
	category.ToolBilling: {
		title: "Faturan yüksek görünmüş olabilir. Yaygın nedenler:",
		bullets: []string{
			"Paket aşımı, roaming, abonelikli servisler, Paycell işlemleri, cihaz taksidi veya vergi farkı kaynaklı olabilir.",
		},
		steps: []string{
			"Dijital Operatör > Faturalarım'da kalem dökümünü incele.",
			"Paket Dışı/Abonelik/Paycell/Önceki dönem kalemi var mı bak.",
			"Şüpheli kalem için Faturaya İtiraz adımlarını uygula.",
		},
	},
}

var fallbackOther = fallbackTemplate{
	title:   "Netleştirmek için:",
	bullets: []string{"Sorunu anlamak için daha fazla bağlama ihtiyaç var."},
	steps: []string{
		"Kullandığın hizmet/paket ve gördüğün hata mesajını paylaş.",
		"Öncesinde yaptığın adımları kısaca yaz.",
	},
}

// renderFallback builds the bulleted template answer for a tool. Tools
// without a dedicated template (coverage included) get the generic one.
func renderFallback(tool string) string {
	tpl, ok := fallbackTemplates[category.Tool(tool)]
	if !ok {
		tpl = fallbackOther
	}

	var b strings.Builder
	b.WriteString(tpl.title)
	b.WriteString("\n")
	for _, bullet := range tpl.bullets {
		fmt.Fprintf(&b, "- %s\n", bullet)
	}
	b.WriteString("\nYapabileceklerin:\n")
	for i, step := range tpl.steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return strings.TrimSpace(b.String())
}
